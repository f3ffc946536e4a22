//go:build !race

package sso

const passwordHashCost = 12
