// Package hcl loads job declarations written in HCL and translates them into
// the format-agnostic model of the config package.
//
// A declaration file may contain any number of `job` blocks:
//
//	job "test" {
//	  fail_fast = false
//
//	  matrix {
//	    axis "runtime"   { values = ["ubuntu-latest", "ubuntu-24.04-arm"] }
//	    axis "container" { values = ["ubuntu:24.04", "opensuse/tumbleweed"] }
//	  }
//
//	  provision {
//	    packages = ["build-essential"]
//	    toolchain "rust" { version = "stable" }
//	  }
//
//	  step "build" {
//	    run = "cargo build --target ${env.CI_TARGET_TRIPLE}"
//	  }
//	}
package hcl
