package main

import "time"

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags Flag structs to decouple cobra from logic for testing.
type RunFlags struct {
	ConfigPath string
	// Launch, print the URL and stop again; used by smoke tests
	NonBlocking bool
}

type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Wait       time.Duration // how long url keeps retrying while the backend starts
}

type ProbeFlags struct {
	Scheme   string
	Host     string
	Port     int
	Kind     string
	Path     string
	Command  string
	Insecure bool
	Timeout  time.Duration
	Interval time.Duration
}

type InitFlags struct {
	Type   string
	Name   string
	Port   int
	Output string
	Force  bool
}
