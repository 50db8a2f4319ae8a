// Package handler implements the HTTP entry point for the traffic engine.
// It walks each request through route resolution, access control, backend
// selection and transformation before handing it to the dispatcher.
package handler
