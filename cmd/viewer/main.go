package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// Local mirror of the stored records so the viewer stays independent of the
// server packages.
type storedMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	Read      bool   `json:"read"`
	At        int64  `json:"at"`
}

type storedConversation struct {
	LastMessage storedMessage `json:"last_message"`
	Unread      int           `json:"unread"`
}

func main() {
	dbPath := flag.String("db", "", "Path to badger DB")
	prefix := flag.String("prefix", "conv:", "Prefix to scan (conv: or dm:)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing -db flag")
	}

	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	if strings.HasPrefix(*prefix, "conv:") {
		table.SetHeader([]string{"Owner", "Peer", "Unread", "Last At", "Last Message"})
	} else {
		table.SetHeader([]string{"Key", "Sender", "Recipient", "Read", "At", "Content"})
	}
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				if strings.HasPrefix(key, "conv:") {
					appendConversation(table, key, v)
				} else {
					appendMessage(table, key, v)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func appendConversation(table *tablewriter.Table, key string, v []byte) {
	var conv storedConversation
	if err := json.Unmarshal(v, &conv); err != nil {
		fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
		return
	}

	// Key layout is conv:{owner}:{peer}
	parts := strings.SplitN(key, ":", 3)
	owner, peer := "?", "?"
	if len(parts) == 3 {
		owner, peer = parts[1], parts[2]
	}

	table.Append([]string{
		owner,
		peer,
		fmt.Sprintf("%d", conv.Unread),
		time.Unix(0, conv.LastMessage.At).UTC().Format("15:04:05"),
		truncate(conv.LastMessage.Content, 60),
	})
}

func appendMessage(table *tablewriter.Table, key string, v []byte) {
	var msg storedMessage
	if err := json.Unmarshal(v, &msg); err != nil {
		fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
		return
	}

	table.Append([]string{
		truncate(key, 48),
		msg.Sender,
		msg.Recipient,
		fmt.Sprintf("%t", msg.Read),
		time.Unix(0, msg.At).UTC().Format("15:04:05"),
		truncate(msg.Content, 60),
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
