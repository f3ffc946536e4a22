//go:build race

package sso

import "golang.org/x/crypto/bcrypt"

// race builds run the hashing paths many times over, keep them fast
const passwordHashCost = bcrypt.MinCost
