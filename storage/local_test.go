package storage_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-sso"
	"github.com/goliatone/go-sso/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent png
const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func pngBytes(t *testing.T) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(pixelPNG)
	require.NoError(t, err)
	return raw
}

func newStorage(t *testing.T, opts ...storage.Option) (*storage.LocalStorage, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := storage.NewLocalStorage(dir, "https://sso.example.com/", opts...)
	require.NoError(t, err)
	return s, dir
}

func TestSaveImage(t *testing.T) {
	s, dir := newStorage(t)
	data := pngBytes(t)

	name, err := s.Save(context.Background(), "100p", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "100p.png", name)

	stored, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	assert.Equal(t, "https://sso.example.com/static/uploads/100p.png", s.URL(name))
	assert.Equal(t, "", s.URL(""))
}

func TestSaveRejectsNonImages(t *testing.T) {
	s, dir := newStorage(t)

	_, err := s.Save(context.Background(), "100p", strings.NewReader("#!/bin/sh\necho pwned\n"))
	require.Error(t, err)
	assert.True(t, sso.IsError(err, sso.ErrInvalidImage))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRejectsEmptyAndUnsafeNames(t *testing.T) {
	s, _ := newStorage(t)

	_, err := s.Save(context.Background(), "100p", strings.NewReader(""))
	assert.True(t, sso.IsError(err, sso.ErrInvalidImage))

	_, err = s.Save(context.Background(), "../etc/passwd", bytes.NewReader(pngBytes(t)))
	assert.True(t, sso.IsError(err, sso.ErrInvalidImage))
}

func TestSaveEnforcesMaxSize(t *testing.T) {
	s, dir := newStorage(t, storage.WithMaxSize(16))

	_, err := s.Save(context.Background(), "100h", bytes.NewReader(pngBytes(t)))
	require.Error(t, err)
	assert.True(t, sso.IsError(err, sso.ErrInvalidImage))

	_, statErr := os.Stat(filepath.Join(dir, "100h.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDelete(t *testing.T) {
	s, dir := newStorage(t)

	name, err := s.Save(context.Background(), "100p", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), name))
	_, statErr := os.Stat(filepath.Join(dir, name))
	assert.True(t, os.IsNotExist(statErr))

	assert.NoError(t, s.Delete(context.Background(), "missing.png"))
	assert.Error(t, s.Delete(context.Background(), "../x.png"))
}

func TestSaveNeverReplacesExistingFile(t *testing.T) {
	s, dir := newStorage(t)
	first := pngBytes(t)

	name, err := s.Save(context.Background(), "100p", bytes.NewReader(first))
	require.NoError(t, err)

	second := append(pngBytes(t), 0x00, 0x01)
	_, err = s.Save(context.Background(), "100p", bytes.NewReader(second))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrExist)

	stored, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, first, stored)
}
