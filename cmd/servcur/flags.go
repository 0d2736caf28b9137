package main

import "time"

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
	Token      string
	User       string
	Password   string
}

type CreateFlags struct {
	URL        string
	Token      string
	Kind       string
	StartCmd   string
	StopCmd    string
	RestartCmd string
	Env        []string
	Redeploy   bool
}

type ActionFlags struct {
	Kind   string
	Follow bool
	Stream string
}
