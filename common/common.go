// Package common holds process-wide helpers shared by the service binaries.
package common

const PackageName = "tee-secret-management-backend"

// Version is set at build time with
// -ldflags "-X github.com/ruteri/tee-secret-management-backend/common.Version=..."
var Version = "dev"
