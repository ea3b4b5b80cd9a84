package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/config"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/query"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/session"
	"github.com/Ankit-selldo/whatsapp-crm-integration/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	db, err := store.Open(session.AppDBPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open store for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: migrate: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	chats := query.NewChatService(db, nil, cfg.RecentWindow(), cfg.MessagesLimit(), nil)
	messages := query.NewMessageService(db, nil)

	switch args[0] {
	case "chats":
		cmdChats(chats, *jsonFlag)
	case "groups":
		cmdChatList(chats.GroupChats, *jsonFlag)
	case "private":
		cmdChatList(chats.PrivateChats, *jsonFlag)
	case "recent":
		cmdChatList(chats.RecentChats, *jsonFlag)
	case "chat":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wacrmctl chat <chat-id>")
			os.Exit(1)
		}
		cmdChat(chats, args[1], *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wacrmctl search <term>")
			os.Exit(1)
		}
		cmdSearch(messages, args[1], *jsonFlag)
	case "media":
		mediaType := "image"
		if len(args) >= 2 {
			mediaType = args[1]
		}
		cmdMedia(messages, mediaType, *jsonFlag)
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wacrmctl delete <chat-id>")
			os.Exit(1)
		}
		cmdDelete(chats, args[1])
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wacrmctl send <chat-id> <text>")
			os.Exit(1)
		}
		cmdSend(messages, args[1], args[2])
	case "send-media":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wacrmctl send-media <chat-id> <file> [caption]")
			os.Exit(1)
		}
		caption := ""
		if len(args) >= 4 {
			caption = args[3]
		}
		cmdSendMedia(messages, args[1], args[2], caption)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wacrmctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  chats              List all chats")
	fmt.Fprintln(os.Stderr, "  groups             List group chats")
	fmt.Fprintln(os.Stderr, "  private            List one-on-one chats")
	fmt.Fprintln(os.Stderr, "  recent             List recently active chats")
	fmt.Fprintln(os.Stderr, "  chat <id>          Show a chat with its latest messages")
	fmt.Fprintln(os.Stderr, "  search <term>      Search message bodies")
	fmt.Fprintln(os.Stderr, "  media [type]       List media messages (image, video, audio, document, sticker)")
	fmt.Fprintln(os.Stderr, "  delete <id>        Delete a chat and its messages")
	fmt.Fprintln(os.Stderr, "  send <id> <text>   Queue a text message for sending")
	fmt.Fprintln(os.Stderr, "  send-media <id> <file> [caption]")
	fmt.Fprintln(os.Stderr, "                     Queue a media file for sending")
}

func cmdChats(svc *query.ChatService, jsonOut bool) {
	list, err := svc.ListChats(0, 0)
	if err != nil {
		fail(err)
	}
	printChats(list, jsonOut)
}

func cmdChatList(list func() ([]store.Chat, error), jsonOut bool) {
	chats, err := list()
	if err != nil {
		fail(err)
	}
	printChats(chats, jsonOut)
}

func printChats(chats []store.Chat, jsonOut bool) {
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("no chats")
		return
	}
	for _, c := range chats {
		kind := "private"
		if c.IsGroup {
			kind = "group"
		}
		name := c.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%-40s  %-8s  %4d msgs  %3d media  %s\n",
			c.ChatID, kind, c.MessageCount, c.MediaCount, name)
	}
}

func cmdChat(svc *query.ChatService, chatID string, jsonOut bool) {
	detail, err := svc.GetChat(chatID, 0)
	if err != nil {
		fail(err)
	}
	if detail == nil {
		fmt.Fprintf(os.Stderr, "chat %q not found\n", chatID)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(detail)
		return
	}
	fmt.Printf("Chat:     %s\n", detail.Chat.ChatID)
	fmt.Printf("Name:     %s\n", detail.Chat.Name)
	fmt.Printf("Messages: %d (%d media)\n\n", detail.Chat.MessageCount, detail.Chat.MediaCount)
	for i := len(detail.Messages) - 1; i >= 0; i-- {
		printMessage(detail.Messages[i])
	}
}

func cmdSearch(svc *query.MessageService, term string, jsonOut bool) {
	results, err := svc.Search(term)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, r := range results {
		name := r.Chat.Name
		if name == "" {
			name = r.Chat.ChatID
		}
		fmt.Printf("%s (%d matches):\n", name, len(r.Messages))
		for _, m := range r.Messages {
			printMessage(m)
		}
		fmt.Println()
	}
}

func cmdMedia(svc *query.MessageService, mediaType string, jsonOut bool) {
	list, err := svc.MediaMessages(mediaType, 100)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Printf("no %s messages\n", mediaType)
		return
	}
	for _, m := range list {
		ref := ""
		if m.Media != nil {
			ref = m.Media.Ref
		}
		fmt.Printf("%s  %-30s  %s\n", formatTS(m.Timestamp), m.ChatName, ref)
	}
}

func cmdDelete(svc *query.ChatService, chatID string) {
	existed, err := svc.DeleteChat(chatID)
	if err != nil {
		fail(err)
	}
	if !existed {
		fmt.Printf("chat %q did not exist\n", chatID)
		return
	}
	fmt.Printf("chat %q deleted\n", chatID)
}

func cmdSend(svc *query.MessageService, chatID, text string) {
	clientMsgID, err := svc.SendText(chatID, text)
	if err != nil {
		fail(err)
	}
	fmt.Printf("queued %s (the daemon sends pending messages when connected)\n", clientMsgID)
}

func cmdSendMedia(svc *query.MessageService, chatID, path, caption string) {
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	clientMsgID, err := svc.SendMedia(chatID, path, mimeType, caption)
	if err != nil {
		fail(err)
	}
	fmt.Printf("queued %s (the daemon sends pending messages when connected)\n", clientMsgID)
}

func printMessage(m store.Message) {
	sender := m.SenderName
	if sender == "" {
		sender = m.From
	}
	body := m.Body
	if body == "" && m.Type != "text" {
		body = "<" + m.Type + ">"
	}
	fmt.Printf("  %s  %-20s  %s\n", formatTS(m.Timestamp), sender, body)
}

func formatTS(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
