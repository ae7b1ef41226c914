// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/memsearchd/pkg/cache"
)

func buildCache(t *testing.T, files map[string]string) *cache.CodebaseCache {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	cc, err := cache.Build(root, cache.BuildOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { cc.Close() })
	return cc
}

func TestRunBindAndSimpleSearch(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "hello\nworld\n"})
	out, err := Run(context.Background(), cc, "world", nil, Options{LineNumber: true}, Limits{})
	require.NoError(t, err)
	require.Equal(t, "a.txt:2:world\n", out)
}

func TestRunCaseSensitivity(t *testing.T) {
	cc := buildCache(t, map[string]string{"b.txt": "Hello\n"})

	out, err := Run(context.Background(), cc, "hello", nil, Options{LineNumber: true}, Limits{})
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = Run(context.Background(), cc, "hello", nil, Options{LineNumber: true, IgnoreCase: true}, Limits{})
	require.NoError(t, err)
	require.Equal(t, "b.txt:1:Hello\n", out)
}

func TestRunMultiFileOrdering(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "x\n", "b.txt": "x\n"})
	out, err := Run(context.Background(), cc, "x", nil, Options{LineNumber: true}, Limits{})
	require.NoError(t, err)
	require.Contains(t, out, "a.txt:1:x\n")
	require.Contains(t, out, "b.txt:1:x\n")
	require.Equal(t, "a.txt:1:x\nb.txt:1:x\n", out) // walker order: RelPath-sorted
}

func TestRunZeroMatchesReturnsEmptyString(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "hello\n"})
	out, err := Run(context.Background(), cc, "zzz", nil, Options{}, Limits{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRunFixedStringsLiteralMatch(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "a.b.c\na+b+c\n"})
	out, err := Run(context.Background(), cc, "a.b", nil, Options{FixedStrings: true, LineNumber: true}, Limits{})
	require.NoError(t, err)
	require.Equal(t, "a.txt:1:a.b.c\n", out)
}

func TestRunWordRegexp(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "cat\nconcatenate\n"})
	out, err := Run(context.Background(), cc, "cat", nil, Options{FixedStrings: true, WordRegexp: true, LineNumber: true}, Limits{})
	require.NoError(t, err)
	require.Equal(t, "a.txt:1:cat\n", out)
}

func TestRunContextRoundTrip(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "one\ntwo\nthree\nfour\nfive\n"})

	withoutCtx, err := Run(context.Background(), cc, "three", nil, Options{LineNumber: true}, Limits{})
	require.NoError(t, err)

	withCtx, err := Run(context.Background(), cc, "three", nil, Options{LineNumber: true, Context: 1}, Limits{})
	require.NoError(t, err)

	require.Contains(t, withCtx, withoutCtx[:len(withoutCtx)-1])
	require.Contains(t, withCtx, "a.txt-2-two\n")
	require.Contains(t, withCtx, "a.txt-4-four\n")
}

func TestRunZeroByteFileProducesNoMatches(t *testing.T) {
	cc := buildCache(t, map[string]string{"empty.txt": ""})
	require.Len(t, cc.Files, 1)
	out, err := Run(context.Background(), cc, ".", nil, Options{}, Limits{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRunSingleLineNoTrailingNewline(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "just one line"})
	out, err := Run(context.Background(), cc, "one", nil, Options{LineNumber: true}, Limits{})
	require.NoError(t, err)
	require.Equal(t, "a.txt:1:just one line\n", out)
}

func TestRunCRLFStripsTerminator(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "first\r\nsecond\r\n"})
	out, err := Run(context.Background(), cc, "second", nil, Options{LineNumber: true}, Limits{})
	require.NoError(t, err)
	require.Equal(t, "a.txt:2:second\n", out)
}

func TestRunGlobExcludeOverridesInclude(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.go": "needle\n", "a_test.go": "needle\n"})
	out, err := Run(context.Background(), cc, "needle", nil, Options{
		LineNumber:   true,
		IncludeGlobs: []string{"*.go"},
		ExcludeGlobs: []string{"*_test.go"},
	}, Limits{})
	require.NoError(t, err)
	require.Equal(t, "a.go:1:needle\n", out)
}

func TestRunPathsEscapingRootYieldsEmptySet(t *testing.T) {
	cc := buildCache(t, map[string]string{"a.txt": "needle\n"})
	out, err := Run(context.Background(), cc, "needle", []string{"/etc"}, Options{}, Limits{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRunTruncatesAtMaxMatches(t *testing.T) {
	content := ""
	for i := 0; i < 50; i++ {
		content += "x\n"
	}
	cc := buildCache(t, map[string]string{"a.txt": content})
	out, err := Run(context.Background(), cc, "x", nil, Options{LineNumber: true}, Limits{MaxMatches: 10})
	require.NoError(t, err)
	require.Contains(t, out, "-- truncated: max matches --")
}

func TestCompileInvalidPatternErrors(t *testing.T) {
	_, err := Compile("(", Options{})
	require.Error(t, err)
}
