// Package config loads and validates Hearth Core configuration.
//
// Configuration comes from a YAML file with environment variable
// overrides (HEARTH_SECTION_KEY pattern). Defaults are applied first,
// then the file, then the environment. Validation runs last and fails
// startup on missing secrets or out-of-range values.
//
// The supla.read_only flag deserves a note: it is read once at startup
// and passed into the actuation gateway as a constructor parameter, so
// a staging deployment can never flip into writing to real devices at
// runtime.
package config
