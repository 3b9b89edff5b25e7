package main

import (
	"os"
	"testing"
)

// chdir stands in for testing.T.Chdir (Go 1.24+): it switches the working
// directory for the test and restores the previous one on cleanup
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
