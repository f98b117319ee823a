package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatsync/internal/domain"
	"chatsync/internal/usecase"
)

var errQuit = errors.New("quit")

var chatSession string

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id to attach to")
	chatCmd.MarkFlagRequired("session")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Attach to a session and chat from stdin",
	Long: `Attach to a session and stream replies as they arrive. Each input line is
sent as a chat message. Lines starting with a slash are commands:

  /interrupt            stop the running turn
  /reconnect            reconnect now, skipping backoff
  /answer <value>       answer the pending question
  /answer q=v; q2=v2    answer several pending questions
  /draft <text>         keep unsent text for this session
  /quit                 exit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, configPath)
		if err != nil {
			return err
		}
		defer func() {
			// Flushes the in-flight reply before the store closes.
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.close(closeCtx); err != nil {
				a.logger.Warn("shutdown incomplete", "error", err)
			}
		}()

		out := cmd.OutOrStdout()
		unsubscribe := newPrinter(out).subscribe(a.bus)
		defer unsubscribe()

		if err := a.client.SwitchSession(ctx, chatSession); err != nil && !errors.Is(err, domain.ErrHistoryLoad) {
			return err
		}
		if draft := a.client.Draft(chatSession); draft != "" {
			statusColor.Fprintf(out, "[draft] %s\n", draft)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := a.scheduler.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			return a.scheduler.Stop()
		})
		g.Go(func() error {
			return readInput(gctx, cmd.InOrStdin(), func(line string) error {
				return handleLine(a.client, out, line)
			})
		})

		if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// readInput feeds lines from r to handle until ctx is done, r is exhausted
// or handle returns an error. EOF ends the session like /quit.
func readInput(ctx context.Context, r io.Reader, handle func(string) error) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- errQuit
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := handle(line); err != nil {
				return err
			}
		}
	}
}

// chatter is the part of usecase.Client the input loop drives.
type chatter interface {
	SendChat(content string, files []domain.FileRef) (domain.Message, error)
	Interrupt() error
	Reconnect() error
	AnswerQuestion(answers map[string]string) error
	SetDraft(text string)
	State() usecase.ClientState
}

// handleLine executes one input line. Only errQuit ends the loop; other
// failures are printed.
func handleLine(c chatter, out io.Writer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var err error
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/interrupt":
		err = c.Interrupt()
	case "/reconnect":
		err = c.Reconnect()
	case "/draft":
		c.SetDraft(strings.TrimSpace(arg))
	case "/answer":
		st := c.State()
		var answers map[string]string
		if answers, err = parseAnswers(arg, st.Question); err == nil {
			err = c.AnswerQuestion(answers)
		}
	default:
		if strings.HasPrefix(cmd, "/") {
			err = fmt.Errorf("unknown command %s", cmd)
			break
		}
		_, err = c.SendChat(line, nil)
	}

	if err != nil {
		errColor.Fprintf(out, "%s\n", describeError(err))
	}
	return nil
}

func describeError(err error) string {
	switch domain.ErrorCodeOf(err) {
	case domain.CodeQuestionPending:
		return "answer the pending question first (/answer)"
	case domain.CodeNoActiveSession:
		return "no active session"
	case domain.CodeRateLimit:
		return "slow down: too many messages"
	case domain.CodeNotConnected, domain.CodeSendQueueFull:
		return "not connected; try /reconnect"
	default:
		return err.Error()
	}
}
