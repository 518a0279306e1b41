package signals

import (
	"errors"
	"log"
	"os"
	"time"
)

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Date    string
	Host    string
	Summary string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.3.1",
	Githash: "no git hash computed",
	Date:    "no build date computed",
}

// StartTime is a global holding the time init() was run
var StartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *log.Logger

// UpdateLogger will log routine activity (session traffic, generator toggles) to a file
var UpdateLogger *log.Logger

// Errors returned by the sampler and its session service.
var (
	ErrInvalidSession = errors.New("invalid or closed session")
	ErrNotActive      = errors.New("sampler is not active")
	ErrAlreadyActive  = errors.New("sampler is already active")
	ErrBadConfig      = errors.New("bad configuration")
)

func init() {
	StartTime = time.Now()

	// The main programs will override these, but at least initialize with sensible values
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
	UpdateLogger = log.New(os.Stderr, "", log.LstdFlags)
}
