// Package cli is the presentation layer: a line-oriented terminal surface
// that reads the session state and renders assistant answers as they
// stream. It never mutates the transcript directly; every action goes
// through the session controller.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"perplexigo/internal/model"
	"perplexigo/internal/session"
)

var (
	promptStyle    = color.New(color.FgCyan, color.Bold).SprintFunc()
	assistantStyle = color.New(color.FgGreen).SprintFunc()
	infoStyle      = color.New(color.FgYellow).SprintFunc()
	errorStyle     = color.New(color.FgRed, color.Bold).SprintFunc()
)

// CLI drives the read-eval loop. Input is read line by line; plain text is
// sent as a query, lines starting with "/" are commands.
type CLI struct {
	session *session.Controller
	in      io.Reader
	out     io.Writer

	mu          sync.Mutex
	drawnMsgID  string
	drawnChars  int
	drawnSearch string
	drawnErr    string
	midAnswer   bool
}

// New builds the CLI and hooks it into the controller's change feed.
func New(sess *session.Controller, in io.Reader, out io.Writer) *CLI {
	c := &CLI{session: sess, in: in, out: out}
	sess.Subscribe(c.render)
	return c
}

// Run loops until EOF or /quit.
func (c *CLI) Run() error {
	fmt.Fprintln(c.out, infoStyle("Type a question, or /help for commands."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	c.prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "/"):
			if quit := c.dispatch(line); quit {
				return nil
			}
		default:
			c.session.Send(line)
		}
		c.prompt()
	}
	return scanner.Err()
}

// dispatch handles one slash command. Returns true to exit the loop.
func (c *CLI) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		c.session.Stop()
		return true
	case "/help":
		c.printHelp()
	case "/new":
		c.session.NewThread()
		fmt.Fprintln(c.out, infoStyle("Started a new thread."))
	case "/list":
		c.printThreads()
	case "/open":
		c.openThread(args)
	case "/rename":
		c.session.RenameThread(strings.TrimSpace(strings.TrimPrefix(line, "/rename")))
	case "/delete":
		c.deleteThread(args)
	case "/clear":
		c.session.DeleteAllThreads()
		fmt.Fprintln(c.out, infoStyle("History cleared."))
	case "/stop":
		c.session.Stop()
	case "/retry":
		c.session.Retry()
	case "/sources":
		c.printSources()
	case "/dismiss":
		c.session.AcknowledgeError()
	default:
		fmt.Fprintln(c.out, errorStyle("Unknown command: "+cmd))
	}
	return false
}

func (c *CLI) printHelp() {
	fmt.Fprint(c.out, `Commands:
  /new            start a new thread
  /list           list threads
  /open <n>       switch to thread n from /list
  /rename <title> rename the active thread
  /delete [n]     delete thread n (default: active)
  /clear          delete all threads
  /stop           cancel the in-flight answer
  /retry          resend the last question
  /sources        show citations for the latest answer
  /dismiss        dismiss the current error
  /quit           exit
`)
}

func (c *CLI) printThreads() {
	snap := c.session.Snapshot()
	if len(snap.Threads) == 0 {
		fmt.Fprintln(c.out, infoStyle("No threads yet."))
		return
	}
	for i, th := range snap.Threads {
		marker := " "
		if th.ID == snap.ActiveThreadID {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %2d. %s  (%s, %d messages)\n",
			marker, i+1, th.Title, formatTimestamp(th.UpdatedAt), len(th.Messages))
	}
}

func (c *CLI) openThread(args []string) {
	th, ok := c.threadByIndex(args)
	if !ok {
		return
	}
	c.session.SetActiveThread(th.ID)
	fmt.Fprintln(c.out, infoStyle("Switched to: "+th.Title))
	for _, m := range th.Messages {
		switch m.Role {
		case model.RoleUser:
			fmt.Fprintf(c.out, "%s %s\n", promptStyle("you>"), m.Content)
		case model.RoleAssistant:
			if m.Content != "" {
				fmt.Fprintln(c.out, assistantStyle(m.Content))
			}
		}
	}
}

func (c *CLI) deleteThread(args []string) {
	if len(args) == 0 {
		if id := c.session.ActiveThreadID(); id != "" {
			c.session.DeleteThread(id)
			fmt.Fprintln(c.out, infoStyle("Thread deleted."))
		}
		return
	}
	if th, ok := c.threadByIndex(args); ok {
		c.session.DeleteThread(th.ID)
		fmt.Fprintln(c.out, infoStyle("Thread deleted."))
	}
}

// threadByIndex resolves a 1-based /list index argument.
func (c *CLI) threadByIndex(args []string) (model.Thread, bool) {
	snap := c.session.Snapshot()
	if len(args) == 0 || len(snap.Threads) == 0 {
		fmt.Fprintln(c.out, errorStyle("Expected a thread number; see /list."))
		return model.Thread{}, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(snap.Threads) {
		fmt.Fprintln(c.out, errorStyle("No such thread; see /list."))
		return model.Thread{}, false
	}
	return snap.Threads[n-1], true
}

func (c *CLI) printSources() {
	snap := c.session.Snapshot()
	th := activeThread(snap)
	if th == nil {
		fmt.Fprintln(c.out, infoStyle("No active thread."))
		return
	}
	for i := len(th.Messages) - 1; i >= 0; i-- {
		m := th.Messages[i]
		if m.Role != model.RoleAssistant || len(m.Citations) == 0 {
			continue
		}
		c.session.OpenSources(m.ID)
		for _, u := range m.Citations {
			fmt.Fprintf(c.out, "  %s  %s\n", infoStyle(domainFromURL(u)), u)
		}
		return
	}
	fmt.Fprintln(c.out, infoStyle("No citations in the latest answer."))
}

func (c *CLI) prompt() {
	fmt.Fprintf(c.out, "%s ", promptStyle("you>"))
}

// render is the controller's change callback. It prints only the delta of
// the in-flight assistant draft, so streamed fragments appear as they
// arrive without redrawing the screen.
func (c *CLI) render() {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.session.Snapshot()
	streaming := c.session.IsStreaming()

	if errMsg := c.session.LastError(); errMsg != "" && errMsg != c.drawnErr {
		c.endAnswerLocked()
		fmt.Fprintln(c.out, errorStyle(errMsg+" (/retry to resend)"))
	}
	c.drawnErr = c.session.LastError()

	draft := latestDraft(snap)
	if draft == nil {
		c.endAnswerLocked()
		return
	}

	if draft.ID != c.drawnMsgID {
		c.drawnMsgID = draft.ID
		c.drawnChars = 0
		c.drawnSearch = ""
	}

	if draft.SearchQuery != "" && draft.SearchQuery != c.drawnSearch {
		fmt.Fprintln(c.out, infoStyle("searching: "+draft.SearchQuery))
	}
	c.drawnSearch = draft.SearchQuery

	content := []rune(draft.Content)
	if len(content) > c.drawnChars {
		fmt.Fprint(c.out, assistantStyle(string(content[c.drawnChars:])))
		c.drawnChars = len(content)
		c.midAnswer = true
	}

	if !streaming {
		c.endAnswerLocked()
	}
}

// endAnswerLocked terminates an in-progress answer line.
func (c *CLI) endAnswerLocked() {
	if c.midAnswer {
		fmt.Fprintln(c.out)
		c.midAnswer = false
	}
}

func activeThread(snap model.Snapshot) *model.Thread {
	for i := range snap.Threads {
		if snap.Threads[i].ID == snap.ActiveThreadID {
			return &snap.Threads[i]
		}
	}
	return nil
}

// latestDraft finds the trailing assistant message of the active thread.
func latestDraft(snap model.Snapshot) *model.Message {
	th := activeThread(snap)
	if th == nil || len(th.Messages) == 0 {
		return nil
	}
	last := &th.Messages[len(th.Messages)-1]
	if last.Role != model.RoleAssistant {
		return nil
	}
	return last
}
