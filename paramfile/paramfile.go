// Package paramfile parses the line-based "Key Value" parameter file
// format described in spec §6. The parser follows the teacher's
// hand-rolled config parser idiom (node/config_loader.go: split into
// lines, switch on key, strconv the value) rather than reaching for an
// external TOML/INI library -- the format here is flatter still, with no
// [section] headers, just whitespace-separated Key Value pairs.
package paramfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/simcontext"
)

// requiredKeys lists the keys whose absence aborts parsing (spec §6:
// "missing required keys abort with the missing-tag name").
var requiredKeys = []string{
	"Input_File",
	"Output_File_Base",
	"Num_Output_Files",
}

// softeningKeys maps particle.Type to its Grav_Softening parameter-file
// key, one entry per species in the order particle.Type enumerates them.
var softeningKeys = [particle.NumTypes]string{
	"Grav_Softening_Gas",
	"Grav_Softening_Halo",
	"Grav_Softening_Disk",
	"Grav_Softening_Bulge",
	"Grav_Softening_Stars",
	"Grav_Softening_Bndry",
}

// Warner receives a WARN-level message for an unknown key; callers
// typically pass log.Default().Module("paramfile").Warn, but the package
// takes a plain func so it has no hard dependency on the log package's
// concrete type.
type Warner func(msg string, args ...any)

// Parse reads key/value pairs from r into a simcontext.Config seeded with
// simcontext.DefaultConfig(), following spec §6's recognized-key list.
// Unknown keys call warn (if non-nil) and are otherwise ignored; a
// missing required key returns an error wrapping simcontext.ErrConfiguration
// naming the offending key, matching §7's Configuration error kind.
func Parse(r io.Reader, warn Warner) (simcontext.Config, error) {
	cfg := simcontext.DefaultConfig()
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return cfg, fmt.Errorf("line %d: expected \"Key Value\", got %q", lineNum, line)
		}
		key, val := fields[0], fields[1]
		seen[key] = true

		if err := apply(&cfg, key, val); err != nil {
			return cfg, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if !isKnownKey(key) && warn != nil {
			warn("unrecognized parameter file key", "key", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("paramfile: %w", err)
	}

	for _, k := range requiredKeys {
		if !seen[k] {
			return cfg, simcontext.Configuration(k, "missing required key")
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func isKnownKey(key string) bool {
	switch key {
	case "Input_File", "Output_File_Base", "Num_IO_Tasks", "Num_Output_Files",
		"Max_Mem_Size", "Buffer_Size", "Runtime_Limit",
		"Max_Timestep", "Min_Timestep",
		"Time_Int_Accuracy", "Tree_Open_Param_BH", "Tree_Open_Param_Rel",
		"Comoving_Integration_On", "Time_Begin", "Time_End", "Periodic_Box_Size":
		return true
	}
	for _, k := range softeningKeys {
		if key == k {
			return true
		}
	}
	return false
}

func apply(cfg *simcontext.Config, key, val string) error {
	switch key {
	case "Input_File":
		cfg.InputFile = val
	case "Output_File_Base":
		cfg.OutputFileBase = val
	case "Num_IO_Tasks":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid Num_IO_Tasks: %w", err)
		}
		cfg.NumIOTasks = n
	case "Num_Output_Files":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid Num_Output_Files: %w", err)
		}
		cfg.NumOutputFiles = n
	case "Max_Mem_Size":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid Max_Mem_Size: %w", err)
		}
		cfg.MaxMemSize = n
	case "Buffer_Size":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid Buffer_Size: %w", err)
		}
		cfg.BufferSize = n
	case "Runtime_Limit":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid Runtime_Limit: %w", err)
		}
		cfg.RuntimeLimitSeconds = n
	case "Max_Timestep":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid Max_Timestep: %w", err)
		}
		cfg.MaxTimestep = f
	case "Min_Timestep":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid Min_Timestep: %w", err)
		}
		cfg.MinTimestep = f
	case "Time_Int_Accuracy":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid Time_Int_Accuracy: %w", err)
		}
		cfg.TimeIntAccuracy = f
	case "Tree_Open_Param_BH":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid Tree_Open_Param_BH: %w", err)
		}
		cfg.TreeOpenParamBH = f
	case "Tree_Open_Param_Rel":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid Tree_Open_Param_Rel: %w", err)
		}
		cfg.TreeOpenParamRel = f
	case "Comoving_Integration_On":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid Comoving_Integration_On: %w", err)
		}
		cfg.Comoving = n != 0
	case "Time_Begin":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid Time_Begin: %w", err)
		}
		cfg.TimeBegin = f
	case "Time_End":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid Time_End: %w", err)
		}
		cfg.TimeEnd = f
	case "Periodic_Box_Size":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid Periodic_Box_Size: %w", err)
		}
		cfg.PeriodicBoxSize = f
	default:
		for t, k := range softeningKeys {
			if key != k {
				continue
			}
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			cfg.Softening[t] = f
			return nil
		}
		// Unrecognized key: ignored per spec §6, warning handled by caller.
	}
	return nil
}

// WriteCanonical serializes cfg back out as "Key Value" lines in the same
// format Parse accepts, for the CLI's start-flag==10 ("write a canonical
// parameter file and exit") contract. Every recognized key is written,
// even when it holds its zero value, so the output is a complete,
// re-parseable parameter file.
func WriteCanonical(w io.Writer, cfg simcontext.Config) error {
	lines := []string{
		fmt.Sprintf("Input_File                 %s", cfg.InputFile),
		fmt.Sprintf("Output_File_Base           %s", cfg.OutputFileBase),
		fmt.Sprintf("Num_IO_Tasks               %d", cfg.NumIOTasks),
		fmt.Sprintf("Num_Output_Files           %d", cfg.NumOutputFiles),
		fmt.Sprintf("Max_Mem_Size               %d", cfg.MaxMemSize),
		fmt.Sprintf("Buffer_Size                %d", cfg.BufferSize),
		fmt.Sprintf("Runtime_Limit              %d", cfg.RuntimeLimitSeconds),
		fmt.Sprintf("Max_Timestep               %g", cfg.MaxTimestep),
		fmt.Sprintf("Min_Timestep               %g", cfg.MinTimestep),
		fmt.Sprintf("Time_Int_Accuracy          %g", cfg.TimeIntAccuracy),
		fmt.Sprintf("Tree_Open_Param_BH         %g", cfg.TreeOpenParamBH),
		fmt.Sprintf("Tree_Open_Param_Rel        %g", cfg.TreeOpenParamRel),
		fmt.Sprintf("Comoving_Integration_On    %d", boolToInt(cfg.Comoving)),
		fmt.Sprintf("Time_Begin                 %g", cfg.TimeBegin),
		fmt.Sprintf("Time_End                   %g", cfg.TimeEnd),
		fmt.Sprintf("Periodic_Box_Size          %g", cfg.PeriodicBoxSize),
	}
	for t, k := range softeningKeys {
		lines = append(lines, fmt.Sprintf("%-26s %g", k, cfg.Softening[t]))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
