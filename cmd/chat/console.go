package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"market-chat/auth"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/projection"
	"market-chat/runtime"
	"market-chat/services"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/samber/lo"
)

type threadLister interface {
	ListThreads(ctx context.Context) ([]domain.Thread, error)
}

const help = `commands:
  as <user>                         act as user
  new direct <user>                 open a direct thread
  new group <user>...               open a group thread
  new listing <listing> <user>...   open a listing thread
  threads                           list threads
  send <thread> <text>              send a message
  system <thread> <text>            send a system message
  edit <message> <text>             edit your message
  delete <message>                  delete your message
  delivered <message>               acknowledge a message
  read <thread>                     mark the thread read now
  mute <thread> | unmute <thread>   mute notifications
  typing <thread>                   signal typing
  show <thread>                     print the thread
  watch <thread> | unwatch <thread> follow inserts in a thread`

// console is a line-oriented client acting as one user at a time.
type console struct {
	service *services.ChatService
	lister  threadLister
	manager *runtime.SubscriptionManager
	out     io.Writer

	mu      sync.Mutex
	user    string
	watches map[string]*runtime.Subscription
}

func newConsole(service *services.ChatService, lister threadLister, manager *runtime.SubscriptionManager, bus *runtime.EventBus, out io.Writer) *console {
	c := &console{
		service: service,
		lister:  lister,
		manager: manager,
		out:     out,
		watches: make(map[string]*runtime.Subscription),
	}
	bus.Subscribe(event.TypingStartType, c.onTyping)
	bus.Subscribe(event.TypingEndType, c.onTyping)
	return c
}

// Serve reads commands until in is exhausted or ctx is done.
func (c *console) Serve(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		errc <- scanner.Err()
	}()

	c.printf("%s\n", help)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if err := c.exec(ctx, strings.Fields(line)); err != nil {
				c.printf("%s\n", color.FgRed.Render(fmt.Sprintf("error: %v", err)))
			}
		}
	}
}

func (c *console) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	c.mu.Lock()
	user := c.user
	c.mu.Unlock()
	ctx = auth.WithUserID(ctx, user)
	text := func(from int) string { return strings.Join(args[from:], " ") }

	switch {
	case args[0] == "as" && len(args) == 2:
		c.mu.Lock()
		c.user = args[1]
		c.mu.Unlock()
		return nil
	case args[0] == "new" && len(args) >= 3:
		cmd := domain.CreateThreadCommand{Type: domain.ThreadType(args[1]), Participants: args[2:]}
		if cmd.Type == domain.ThreadListing {
			cmd.ListingID = lo.ToPtr(args[2])
			cmd.Participants = args[3:]
		}
		thread, err := c.service.CreateThread(ctx, cmd)
		if err != nil {
			return err
		}
		c.printf("thread %s\n", thread.ID)
	case args[0] == "threads" && c.lister != nil:
		threads, err := c.lister.ListThreads(ctx)
		if err != nil {
			return err
		}
		for _, t := range threads {
			c.printf("%s %-7s %s\n", t.ID, t.Type, t.UpdatedAt.Format(time.RFC3339))
		}
	case args[0] == "send" && len(args) >= 3:
		m, err := c.service.SendMessage(ctx, domain.SendMessageCommand{ThreadID: args[1], Content: text(2)})
		if err != nil {
			return err
		}
		c.printf("message %s\n", m.ID)
	case args[0] == "system" && len(args) >= 3:
		_, err := c.service.SendSystemMessage(ctx, args[1], text(2))
		return err
	case args[0] == "edit" && len(args) >= 3:
		_, err := c.service.EditMessage(ctx, domain.EditMessageCommand{MessageID: args[1], Content: text(2)})
		return err
	case args[0] == "delete" && len(args) == 2:
		_, err := c.service.DeleteMessage(ctx, args[1])
		return err
	case args[0] == "delivered" && len(args) == 2:
		_, err := c.service.MarkDelivered(ctx, args[1])
		return err
	case args[0] == "read" && len(args) == 2:
		_, err := c.service.MarkThreadRead(ctx, domain.MarkReadCommand{ThreadID: args[1], At: time.Now()})
		return err
	case (args[0] == "mute" || args[0] == "unmute") && len(args) == 2:
		_, err := c.service.SetMuted(ctx, domain.SetMutedCommand{ThreadID: args[1], UserID: user, Muted: args[0] == "mute"})
		return err
	case args[0] == "typing" && len(args) == 2:
		return c.service.StartTyping(ctx, args[1])
	case args[0] == "show" && len(args) == 2:
		return c.show(ctx, args[1])
	case args[0] == "watch" && len(args) == 2:
		return c.watch(ctx, args[1])
	case args[0] == "unwatch" && len(args) == 2:
		c.unwatch(args[1])
	default:
		c.printf("%s\n", help)
	}
	return nil
}

func (c *console) show(ctx context.Context, threadID string) error {
	view, err := c.service.LoadThread(ctx, threadID)
	if err != nil {
		return err
	}
	c.printf("%s thread %s, %d unread\n", view.Thread.Type, view.Thread.ID, view.Unread)
	for _, m := range view.Messages {
		sender := m.SenderID
		if profile, ok := view.Profiles[m.SenderID]; ok {
			sender = profile.DisplayName()
		}
		content := m.Content
		if m.IsDeleted() {
			content = "(deleted)"
		} else if m.EditedAt != nil {
			content += " (edited)"
		}
		c.printf("  %s %-12s %-9s %s\n", m.CreatedAt.Format("15:04:05"), sender, m.Status, content)
	}
	if len(view.Typing) > 0 {
		c.printf("  %s typing...\n", strings.Join(view.Typing, ", "))
	}
	return nil
}

// watch follows a thread: every insert hint re-reads the thread and prints
// the messages the local timeline had not seen yet.
func (c *console) watch(ctx context.Context, threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watches[threadID]; ok {
		return nil
	}
	view, err := c.service.LoadThread(ctx, threadID)
	if err != nil {
		return err
	}
	timeline := projection.NewTimeline(threadID)
	timeline.Merge(view.Messages)

	sub, err := c.manager.Open(ctx, runtime.ThreadScope(threadID), func(domain.Change) {
		view, err := c.service.LoadThread(ctx, threadID)
		if err != nil {
			c.printf("%s\n", color.FgRed.Render(fmt.Sprintf("error: %v", err)))
			return
		}
		for _, m := range timeline.Merge(view.Messages) {
			c.printf("%s\n", color.FgCyan.Render(fmt.Sprintf("* [%s] %s: %s", threadID, m.SenderID, m.Content)))
		}
	})
	if err != nil {
		return err
	}
	c.watches[threadID] = sub
	return nil
}

func (c *console) unwatch(threadID string) {
	c.mu.Lock()
	sub, ok := c.watches[threadID]
	delete(c.watches, threadID)
	c.mu.Unlock()
	if ok {
		c.manager.Close(sub)
	}
}

func (c *console) onTyping(_ context.Context, evt event.Event) error {
	typing, ok := evt.Payload.(event.Typing)
	if !ok {
		return nil
	}
	c.printf("%s\n", color.FgGray.Render(fmt.Sprintf("* %s %s in %s", typing.UserID, evt.Name, typing.ThreadID)))
	return nil
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
