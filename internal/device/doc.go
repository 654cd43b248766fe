// Package device defines the radio-facing vocabulary of the session manager.
//
// It provides:
//   - Device identity (Info) and data types (HrSample)
//   - Logical features and streaming sub-features
//   - GATT service and characteristic UUIDs of the supported profiles
//   - The Transport and Link interfaces implemented by radio backends
//   - Structured connection errors with errors.Is support
package device
