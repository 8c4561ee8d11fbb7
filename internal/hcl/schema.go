package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot decodes all top-level blocks of a declaration file.
type fileRoot struct {
	Jobs   []*jobBlock `hcl:"job,block"`
	Remain hcl.Body    `hcl:",remain"`
}

type jobBlock struct {
	Name      string            `hcl:"name,label"`
	FailFast  *bool             `hcl:"fail_fast,optional"`
	Timeout   string            `hcl:"timeout,optional"`
	Env       map[string]string `hcl:"env,optional"`
	On        *triggerBlock     `hcl:"on,block"`
	Matrix    *matrixBlock      `hcl:"matrix,block"`
	Provision *provisionBlock   `hcl:"provision,block"`
	Cache     *cacheBlock       `hcl:"cache,block"`
	Steps     []*stepBlock      `hcl:"step,block"`
}

type triggerBlock struct {
	Push        []string `hcl:"push,optional"`
	PullRequest []string `hcl:"pull_request,optional"`
	Manual      bool     `hcl:"manual,optional"`
}

type matrixBlock struct {
	Axes    []*axisBlock   `hcl:"axis,block"`
	Include hcl.Expression `hcl:"include,optional"`
	Exclude hcl.Expression `hcl:"exclude,optional"`
}

type axisBlock struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

type provisionBlock struct {
	Packages   []string          `hcl:"packages,optional"`
	Toolchains []*toolchainBlock `hcl:"toolchain,block"`
}

type toolchainBlock struct {
	Kind        string   `hcl:"kind,label"`
	Version     string   `hcl:"version,optional"`
	Components  []string `hcl:"components,optional"`
	Targets     []string `hcl:"targets,optional"`
	Fingerprint string   `hcl:"fingerprint,optional"`
}

type cacheBlock struct {
	Prefix    string   `hcl:"prefix,optional"`
	Paths     []string `hcl:"paths"`
	LockFiles []string `hcl:"lock_files,optional"`
}

type stepBlock struct {
	Name           string            `hcl:"name,label"`
	Run            hcl.Expression    `hcl:"run"`
	Condition      string            `hcl:"condition,optional"`
	When           []*predicateBlock `hcl:"when,block"`
	WhenAny        []*predicateBlock `hcl:"when_any,block"`
	Policy         string            `hcl:"policy,optional"`
	Timeout        string            `hcl:"timeout,optional"`
	DenyWarnings   bool              `hcl:"deny_warnings,optional"`
	WarningPattern string            `hcl:"warning_pattern,optional"`
	WorkingDir     string            `hcl:"working_dir,optional"`
	Env            map[string]string `hcl:"env,optional"`
}

type predicateBlock struct {
	Field string `hcl:"field"`
	Op    string `hcl:"op"`
	Value string `hcl:"value"`
}
