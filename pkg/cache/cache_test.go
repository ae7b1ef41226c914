// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildMapsTextFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.go"), "package a\nfunc F() {}\n")
	writeFile(t, filepath.Join(root, "sub", "b.go"), "package sub\n")

	cc, err := Build(root, BuildOptions{})
	require.NoError(t, err)
	defer cc.Close()

	require.Len(t, cc.Files, 2)
	var rels []string
	for _, f := range cc.Files {
		rels = append(rels, f.RelPath)
	}
	require.ElementsMatch(t, []string{"a.go", "sub/b.go"}, rels)
}

func TestBuildSkipsGitDirAndIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "vendor/\n*.log\n")
	writeFile(t, filepath.Join(root, "keep.go"), "package keep\n")
	writeFile(t, filepath.Join(root, "vendor", "dep.go"), "package dep\n")
	writeFile(t, filepath.Join(root, "debug.log"), "noisy\n")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")

	cc, err := Build(root, BuildOptions{})
	require.NoError(t, err)
	defer cc.Close()

	require.Len(t, cc.Files, 1)
	require.Equal(t, "keep.go", cc.Files[0].RelPath)
}

func TestBuildSkipsOversizedAndBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "small.txt"), "hello\n")
	writeFile(t, filepath.Join(root, "binary.bin"), "abc\x00def")

	big := make([]byte, MaxFileBytes+1)
	writeFile(t, filepath.Join(root, "huge.txt"), string(big))

	cc, err := Build(root, BuildOptions{})
	require.NoError(t, err)
	defer cc.Close()

	require.Len(t, cc.Files, 1)
	require.Equal(t, "small.txt", cc.Files[0].RelPath)
	require.Equal(t, 2, cc.SkippedCount)
}

func TestBuildRejectsNonDirectoryRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "notadir")
	writeFile(t, file, "x")

	_, err := Build(file, BuildOptions{})
	require.Error(t, err)
}

func TestMappedFileLineAt(t *testing.T) {
	root := t.TempDir()
	content := "line one\nline two\nline three\n"
	writeFile(t, filepath.Join(root, "f.txt"), content)

	cc, err := Build(root, BuildOptions{})
	require.NoError(t, err)
	defer cc.Close()

	require.Len(t, cc.Files, 1)
	f := cc.Files[0]

	require.Equal(t, 1, f.LineAt(0))
	require.Equal(t, 2, f.LineAt(9))
	require.Equal(t, 3, f.LineAt(18))
}

func TestIgnoreSetNegation(t *testing.T) {
	s := newIgnoreSet()
	rule1, _ := parseIgnoreLine("*.log")
	rule2, _ := parseIgnoreLine("!keep.log")
	s.rules = append(s.rules, rule1, rule2)

	require.True(t, s.matches("debug.log", false))
	require.False(t, s.matches("keep.log", false))
}

func TestGlobMatchDoubleStar(t *testing.T) {
	require.True(t, globMatch("**/*.go", "a/b/c.go"))
	require.True(t, globMatch("**/*.go", "c.go"))
	require.False(t, globMatch("**/*.go", "c.txt"))
}
