package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/controller"
	domainmocks "zipmirror.dev/pkg/zipmirror/internal/domain/mocks"
)

const unsetPasswordEnv = "ZIPMIRROR_TEST_UNSET_PASSWORD"

type testCLI struct {
	cmd      *cobra.Command
	out      *bytes.Buffer
	errOut   *bytes.Buffer
	workflow *domainmocks.MockWorkflow
}

// newTestCLI builds a root command with sub attached, a mock workflow, a
// plain UI reading input and an in-memory keyring.
func newTestCLI(t *testing.T, input string, sub ...*cobra.Command) *testCLI {
	t.Helper()

	t.Setenv("ZIPMIRROR_LOG_FILENAME", filepath.Join(t.TempDir(), "zipmirror.log"))
	keyring.MockInit()

	cli := &testCLI{
		cmd:      newRootCmd(),
		out:      &bytes.Buffer{},
		errOut:   &bytes.Buffer{},
		workflow: domainmocks.NewMockWorkflow(t),
	}

	cli.cmd.AddCommand(sub...)
	cli.cmd.SetOut(cli.out)
	cli.cmd.SetErr(cli.errOut)
	cli.cmd.SetIn(strings.NewReader(input))

	originalWorkflow, originalUI, originalStore := workflow, ui, passwordStore
	workflow = cli.workflow
	ui = controller.NewSimpleUI(cli.cmd)
	passwordStore = adapter.NewKeyringPasswordStore(keyringService)

	t.Cleanup(func() {
		workflow, ui, passwordStore = originalWorkflow, originalUI, originalStore
	})

	return cli
}

func (c *testCLI) run(args ...string) error {
	c.cmd.SetArgs(args)

	return c.cmd.Execute()
}
