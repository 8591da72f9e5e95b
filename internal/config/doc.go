// Package config provides the configuration of an AllergenScan run: crawl
// politeness settings, report and history options, search credentials and
// per-site overrides loaded from the .allergenscan file.
package config
