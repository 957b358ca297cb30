package main

import (
	"context"
	"flag"
	"io"
	"log"
	"market-chat/domain"
	"market-chat/repositories"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	_ = godotenv.Load()
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	threadID := flag.String("thread", "", "Print the messages of this thread")
	prefix := flag.String("prefix", "", "Print raw keys under this prefix")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLogger(nil))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	store := repositories.NewBadgerStore(db, logs.GetLoggerFromString("ERROR"))
	ctx := context.Background()

	switch {
	case *prefix != "":
		err = printKeys(os.Stdout, db, *prefix)
	case *threadID != "":
		err = printMessages(ctx, os.Stdout, store, *threadID)
	default:
		err = printThreads(ctx, os.Stdout, store)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func printThreads(ctx context.Context, out io.Writer, store *repositories.BadgerStore) error {
	threads, err := store.ListThreads(ctx)
	if err != nil {
		return err
	}
	table := newTable(out, "ID", "Type", "Listing", "Creator", "Participants", "Last Message")
	for _, t := range threads {
		participants, err := store.ListParticipants(ctx, t.ID)
		if err != nil {
			return err
		}
		table.Append([]string{
			t.ID,
			string(t.Type),
			deref(t.ListingID),
			t.CreatorID,
			strconv.Itoa(len(participants)),
			formatTime(t.LastMessageAt),
		})
	}
	table.Render()
	return nil
}

func printMessages(ctx context.Context, out io.Writer, store *repositories.BadgerStore, threadID string) error {
	messages, err := store.ListMessages(ctx, threadID)
	if err != nil {
		return err
	}
	table := newTable(out, "At", "ID", "Sender", "Status", "Flags", "Content")
	for _, m := range messages {
		table.Append([]string{
			m.CreatedAt.Format("15:04:05.000"),
			shortID(m.ID),
			m.SenderID,
			m.Status.String(),
			flags(m),
			m.Content,
		})
	}
	table.Render()
	return nil
}

// printKeys lists raw keys; message keys are split into their parts.
func printKeys(out io.Writer, db *badger.DB, prefix string) error {
	table := newTable(out, "Key", "Thread", "Timestamp", "Entity ID", "Size")
	err := db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := string(item.Key())
			thread, timestamp, entityID := "-", "--:--:--", "-"
			if parts := strings.Split(key, ":"); parts[0] == "msg" && len(parts) == 4 {
				thread = parts[1]
				if nanos, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
					timestamp = time.Unix(0, nanos).UTC().Format("15:04:05")
				}
				entityID = shortID(parts[3])
			}
			table.Append([]string{key, thread, timestamp, entityID, strconv.FormatInt(item.ValueSize(), 10)})
		}
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func flags(m domain.Message) string {
	var f []string
	if m.IsSystem {
		f = append(f, "system")
	}
	if m.EditedAt != nil {
		f = append(f, "edited")
	}
	if m.IsDeleted() {
		f = append(f, "deleted")
	}
	return strings.Join(f, ",")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
