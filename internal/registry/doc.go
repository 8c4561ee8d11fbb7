// Package registry provides the central "glue" for the provisioning module
// system.
//
// The Registry stores the package-manager recipes and toolchain installers
// that the provisioner chooses from. Built-in modules register themselves in
// Go; additional recipes can be declared in HCL files and loaded from a
// directory at startup. After population the registry is validated against
// the loaded job declarations so that a job requesting an unknown toolchain
// fails before any cell starts.
package registry
