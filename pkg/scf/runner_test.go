package scf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func stubCommand(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string{name}, args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "SCF_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestBuildArgs(t *testing.T) {
	req := Request{
		RootOutputName: "/run/extra",
		FourierRadius:  79.9,
		TiltAngle:      12.5,
		NumberToUse:    1000,
		Symmetry:       "C4",
		SideInfoPath:   "/run/extra/particleAngles.txt",
	}
	want := []string{
		"--RootOutputName", "/run/extra",
		"--FourierRadius", "79",
		"--TiltAngle", "12.5",
		"--NumberToUse", "1000",
		"--Sym", "C4",
		"/run/extra/particleAngles.txt",
	}
	if got := BuildArgs(req); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildArgsOmitsOptionalFlags(t *testing.T) {
	req := Request{
		RootOutputName: "out",
		FourierRadius:  80,
		NumberToUse:    -1,
		SideInfoPath:   "angles.txt",
	}
	want := []string{"--RootOutputName", "out", "--FourierRadius", "80", "--TiltAngle", "0", "angles.txt"}
	if got := BuildArgs(req); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRunnerCommandWithInterpreter(t *testing.T) {
	r := NewRunner("/opt/scf/SCFJan2022.py", WithInterpreter("python3"))
	name, args := r.Command(Request{NumberToUse: -1, SideInfoPath: "a.txt"})
	if name != "python3" {
		t.Fatalf("expected interpreter to be the executable, got %q", name)
	}
	if args[0] != "/opt/scf/SCFJan2022.py" {
		t.Fatalf("expected program as first argument, got %v", args)
	}
	if args[len(args)-1] != "a.txt" {
		t.Fatalf("expected side-info path last, got %v", args)
	}
}

func TestRunnerRunCapturesOutput(t *testing.T) {
	var captured []string
	stubCommand(t, "success", &captured)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "extra", "outputInfoFileSCF.txt")
	var live strings.Builder
	r := NewRunner("SCFJan2022.py", WithOutput(&live))

	res, err := r.Run(context.Background(), Request{
		RootOutputName: dir,
		FourierRadius:  80,
		NumberToUse:    -1,
		SideInfoPath:   filepath.Join(dir, "particleAngles.txt"),
		LogPath:        logPath,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.LogPath != logPath {
		t.Fatalf("expected log path %q, got %q", logPath, res.LogPath)
	}
	if len(captured) == 0 || captured[0] != "SCFJan2022.py" {
		t.Fatalf("expected program to be invoked, got %v", captured)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	log := string(data)
	if !strings.Contains(log, "SCF value 0.81") || !strings.Contains(log, "warning on stderr") {
		t.Fatalf("expected stdout and stderr in log, got %q", log)
	}
	if live.String() != log {
		t.Fatalf("expected live output to mirror the log")
	}
}

func TestRunnerRunFailure(t *testing.T) {
	stubCommand(t, "failure", nil)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.txt")
	r := NewRunner("SCFJan2022.py")

	_, err := r.Run(context.Background(), Request{SideInfoPath: "a.txt", NumberToUse: -1, LogPath: logPath})
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessError, got %v", err)
	}
	if pe.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", pe.ExitCode)
	}
	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "Traceback") {
		t.Fatalf("expected raw failure output in log, got %q", data)
	}
}

func TestRunnerRunRequiresPaths(t *testing.T) {
	r := NewRunner("SCFJan2022.py")
	if _, err := r.Run(context.Background(), Request{LogPath: "x"}); err == nil {
		t.Fatal("expected error when side-info path is empty")
	}
	if _, err := r.Run(context.Background(), Request{SideInfoPath: "x"}); err == nil {
		t.Fatal("expected error when log path is empty")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("SCF_HELPER_MODE") {
	case "success":
		fmt.Println("Number of projections 3")
		fmt.Println("SCF value 0.81")
		fmt.Fprintln(os.Stderr, "warning on stderr")
		os.Exit(0)
	case "failure":
		fmt.Println("Traceback (most recent call last):")
		fmt.Fprintln(os.Stderr, "ValueError: could not convert string to float")
		os.Exit(3)
	default:
		os.Exit(0)
	}
}
