package controller

import (
	"context"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type passwordModel struct {
	input     textinput.Model
	label     string
	done      bool
	cancelled bool
}

func newPasswordModel(label string) passwordModel {
	input := textinput.New()
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.Prompt = label + ": "
	input.Focus()

	return passwordModel{input: input, label: label}
}

func (pm passwordModel) Init() tea.Cmd {
	return textinput.Blink
}

func (pm passwordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			pm.done = true
			return pm, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			pm.cancelled = true
			return pm, tea.Quit
		}
	}

	var cmd tea.Cmd

	pm.input, cmd = pm.input.Update(msg)

	return pm, cmd
}

func (pm passwordModel) View() string {
	if pm.done || pm.cancelled {
		return ""
	}

	return pm.input.View() + "\n"
}

func runPasswordPrompt(ctx context.Context, label string, in io.Reader, out io.Writer) (string, error) {
	program := tea.NewProgram(newPasswordModel(label),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)

	final, err := program.Run()
	if err != nil {
		return "", err
	}

	pm, ok := final.(passwordModel)
	if !ok || pm.cancelled || !pm.done {
		return "", ErrPromptCancelled
	}

	return pm.input.Value(), nil
}
