package procexec

import (
	"errors"
	"testing"
)

func TestFakeRunnerRecordsInvocations(t *testing.T) {
	fr := &FakeRunner{Result: Result{Stdout: []byte("hi"), ExitCode: 0}}
	cmd := Command{Path: "/usr/bin/gcc", Args: []string{"-c", "a.c"}}

	res, err := fr.Run(cmd, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Stdout) != "hi" {
		t.Errorf("Stdout = %q, want hi", res.Stdout)
	}
	if len(fr.Invocations) != 1 || fr.Invocations[0].Path != "/usr/bin/gcc" {
		t.Errorf("Invocations = %+v", fr.Invocations)
	}
}

func TestFakeRunnerExecRecords(t *testing.T) {
	wantErr := errors.New("boom")
	fr := &FakeRunner{Err: wantErr}
	if err := fr.Exec(Command{Path: "/bin/true"}); err != wantErr {
		t.Errorf("Exec err = %v, want %v", err, wantErr)
	}
	if len(fr.Invocations) != 1 {
		t.Errorf("expected 1 invocation, got %d", len(fr.Invocations))
	}
}

func TestRecordingRunnerWrapsAndRecords(t *testing.T) {
	inner := &FakeRunner{Result: Result{ExitCode: 3}}
	rr := &RecordingRunner{Runner: inner}

	cmd := Command{Path: "/usr/bin/clang"}
	if _, err := rr.Run(cmd, nil); err != nil {
		t.Fatal(err)
	}

	last, err := rr.LastCommand()
	if err != nil {
		t.Fatal(err)
	}
	if last.Path != "/usr/bin/clang" {
		t.Errorf("LastCommand = %+v", last)
	}
}

func TestRecordingRunnerLastCommandEmptyIsError(t *testing.T) {
	rr := &RecordingRunner{Runner: &FakeRunner{}}
	if _, err := rr.LastCommand(); err == nil {
		t.Error("expected error when no commands recorded")
	}
}

func TestExitCodeNilErrIsNotOk(t *testing.T) {
	if _, ok := ExitCode(nil); ok {
		t.Error("ExitCode(nil) should report ok=false")
	}
}

func TestExitCodeNonExitErrorIsNotOk(t *testing.T) {
	if _, ok := ExitCode(errors.New("plain error")); ok {
		t.Error("ExitCode of a non-exec error should report ok=false")
	}
}
