package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommandExecution(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = "1.2.3-test"

	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, []string{})

	want := "maestro version 1.2.3-test\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestVersionCommandHelp(t *testing.T) {
	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.SetErr(&buf)
	versionCmd.SetArgs([]string{"--help"})

	if err := versionCmd.Execute(); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(buf.String(), "All software has versions") {
		t.Errorf("help output missing description: %q", buf.String())
	}
}

func TestSelfUpdateRejectsDevVersion(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = "dev"

	err := runSelfUpdate(newSelfUpdateCmd(), nil)
	if err == nil || !strings.Contains(err.Error(), "development version") {
		t.Errorf("err = %v, want development version rejection", err)
	}
}
