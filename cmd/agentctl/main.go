// Command agentctl is the operator interface for the agent kernel: it wires
// every package into one process and dispatches a fixed set of verbs over a
// flat switch, the same shape the pack's own legatorctl uses for its fleet/
// probes/tokens commands — the teacher's own core/cmd/example/main.go is a
// plain func main() with no CLI framework, and nothing in its dependency
// graph pulls one in, so this stays on the standard flag package throughout.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/LuisChen1Q84/agentkernel/core"
)

// Exit codes are stable and documented (spec.md §6): every caller scripting
// against agentctl can depend on these never changing meaning.
const (
	exitOK                = 0
	exitUsage             = 2
	exitGovernanceBlock   = 10
	exitMissingInput      = 11
	exitServiceFailure    = 12
	exitApprovalRequired  = 13
	exitPolicyViolation   = 14
	exitBackpressure      = 15
	exitInternal          = 1
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is the testable entry point: it never calls os.Exit itself so tests
// can assert on the returned code instead of forking a process.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	verb := args[0]
	rest := args[1:]

	if verb == "help" || verb == "--help" || verb == "-h" {
		printUsage(stdout)
		return exitOK
	}

	var err error
	switch verb {
	case "submit":
		err = runSubmit(rest, stdout, stderr)
	case "status":
		err = runStatus(rest, stdout, stderr)
	case "inspect":
		err = runInspect(rest, stdout, stderr)
	case "observe":
		err = runObserve(rest, stdout, stderr)
	case "recommend":
		err = runRecommend(rest, stdout, stderr)
	case "feedback":
		err = runFeedback(rest, stdout, stderr)
	case "policy":
		err = runPolicy(rest, stdout, stderr)
	case "services":
		err = runServices(rest, stdout, stderr)
	case "diagnose":
		err = runDiagnose(rest, stdout, stderr)
	case "pipeline":
		err = runPipeline(rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "error: unknown verb %q\n", verb)
		printUsage(stderr)
		return exitUsage
	}

	if err == nil {
		return exitOK
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCodeForError(err)
}

// errUsage marks a flag-parsing or argument-shape mistake, as opposed to a
// runtime failure from one of the wired packages.
var errUsage = errors.New("usage error")

// exitCodeForError maps a core.KernelError's ErrorKind onto the documented
// exit code; an error that isn't a *core.KernelError (a wiring failure
// before any run-specific error_kind exists) falls back to exitInternal.
func exitCodeForError(err error) int {
	var kerr *core.KernelError
	if !errors.As(err, &kerr) {
		return exitInternal
	}
	switch kerr.Kind {
	case core.ErrorKindGovernanceBlock:
		return exitGovernanceBlock
	case core.ErrorKindMissingInput:
		return exitMissingInput
	case core.ErrorKindApprovalRequired:
		return exitApprovalRequired
	case core.ErrorKindPolicyViolation:
		return exitPolicyViolation
	case core.ErrorKindBackpressure:
		return exitBackpressure
	case core.ErrorKindServiceUnavailable, core.ErrorKindToolTimeout,
		core.ErrorKindContractViolation, core.ErrorKindInternal:
		return exitServiceFailure
	default:
		return exitInternal
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `agentctl - agent kernel operator interface

Usage:
  agentctl <verb> [flags]

Verbs:
  submit     --text TEXT [--profile P] [--origin O] [--params JSON] [--dry-run]
  status     --run RUN_ID
  inspect    --run RUN_ID
  observe    [--since DURATION] [--top-n N]
  recommend  --text TEXT [--profile P]
  feedback   add --run RUN_ID --rating R [--note TEXT]
  feedback   stats
  policy     show|apply [--dry-run]
  policy     rollback --snapshot ID
  services   list
  services   call --service NAME [--params JSON] [--dry-run]
  diagnose   [--top-n N]
  pipeline   [--dry-run] FILE

Every verb accepts --config PATH to point at a TOML configuration file.
Exit codes: 0 ok, 2 usage, 10 governance_block, 11 missing_input,
12 service failure, 13 approval_required, 14 policy_violation, 15 backpressure.
`)
}
