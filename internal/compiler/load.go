// Package compiler turns CUE definition files into device declarations
// and alarm groups.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cellrules/internal/engine"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Result holds everything compiled from a definitions directory.
type Result struct {
	Devices   []DeviceEntry
	Alarms    []AlarmGroup
	FileCount int
}

// DeviceEntry is a compiled device with its source position.
type DeviceEntry struct {
	Def engine.DeviceDef
	Pos token.Pos
}

// LoadDir loads every .cue file in dir as one CUE instance and compiles
// its device and alarms blocks.
func LoadDir(dir string, mode LoadMode) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Field: "dir", Message: fmt.Sprintf("definitions directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Field: "dir", Message: fmt.Sprintf("error accessing definitions directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&CompileError{Code: ErrCodeNotFound, Field: "dir", Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&CompileError{Code: ErrCodeScanError, Field: "dir", Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&CompileError{Code: ErrCodeNoFiles, Field: "dir", Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&CompileError{Code: ErrCodeLoadFailed, Field: "cue", Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&CompileError{Code: ErrCodeLoadFailed, Field: "cue", Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{withCode(formatCUEError(err, "cue"), ErrCodeBuildFailed)}
	}

	res, errs := Compile(value, mode)
	res.FileCount = len(files)
	return res, errs
}

// CompileSource compiles definitions held in memory. filename is used in
// error positions.
func CompileSource(filename, src string, mode LoadMode) (*Result, []error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{withCode(formatCUEError(err, "cue"), ErrCodeBuildFailed)}
	}
	res, errs := Compile(value, mode)
	res.FileCount = 1
	return res, errs
}

// Compile extracts the device and alarms blocks from a built CUE value
// and checks them against each other.
func Compile(value cue.Value, mode LoadMode) (*Result, []error) {
	res := &Result{}
	var errs []error

	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	if devices := field(value, "device"); devices.Exists() {
		iter, err := devices.Fields()
		if err != nil {
			if fail(errorf(ErrCodeDevice, "device", devices.Pos(), "must be a struct")) {
				return res, errs
			}
		} else {
			for iter.Next() {
				def, err := CompileDevice(iter.Value())
				if err != nil {
					if fail(err) {
						return res, errs
					}
					continue
				}
				res.Devices = append(res.Devices, DeviceEntry{Def: def, Pos: iter.Value().Pos()})
			}
		}
	}

	if alarms := field(value, "alarms"); alarms.Exists() {
		iter, err := alarms.Fields()
		if err != nil {
			if fail(errorf(ErrCodeAlarms, "alarms", alarms.Pos(), "must be a struct")) {
				return res, errs
			}
		} else {
			for iter.Next() {
				g, err := CompileAlarms(iter.Value())
				if err != nil {
					if fail(err) {
						return res, errs
					}
					continue
				}
				res.Alarms = append(res.Alarms, g)
			}
		}
	}

	for _, err := range checkConflicts(res) {
		if fail(err) {
			return res, errs
		}
	}

	if len(res.Devices) == 0 && len(res.Alarms) == 0 && len(errs) == 0 {
		errs = append(errs, &CompileError{Code: ErrCodeGeneric, Field: "cue", Message: "no devices or alarms found in definitions"})
	}
	return res, errs
}

// checkConflicts reports alarm devices that collide with a declared
// device or another alarm group.
func checkConflicts(res *Result) []error {
	var errs []error
	owners := make(map[string]string)
	for _, d := range res.Devices {
		owners[d.Def.Name] = "device." + d.Def.Name
	}
	for _, g := range res.Alarms {
		if owner, ok := owners[g.DeviceName]; ok {
			errs = append(errs, errorf(ErrCodeConflict, "alarms."+g.Name+".deviceName", g.Pos,
				"device %q is already declared by %s", g.DeviceName, owner))
			continue
		}
		owners[g.DeviceName] = "alarms." + g.Name
	}
	return errs
}

func withCode(err error, code string) error {
	if ce, ok := err.(*CompileError); ok {
		ce.Code = code
	}
	return err
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
