// Package entities provides the domain types shared by the error and port
// packages. It has no dependencies outside the standard library.
package entities
