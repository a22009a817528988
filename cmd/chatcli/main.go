// chatcli is a minimal terminal front end for the DevLink messaging client,
// wiring config, session, socket, and the conversation view model together.
// It exists for manual testing against a running backend; the library under
// internal/ is the deliverable.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"devlink-client/internal/api"
	"devlink-client/internal/chat"
	"devlink-client/internal/config"
	"devlink-client/internal/models"
	"devlink-client/internal/notify"
	"devlink-client/internal/presence"
	"devlink-client/internal/session"
	"devlink-client/internal/socket"
)

func main() {
	email := flag.String("email", "", "account email (skips session restore)")
	password := flag.String("password", "", "account password")
	register := flag.Bool("register", false, "register a new account instead of logging in")
	name := flag.String("name", "", "display name when registering")
	flag.Parse()

	cfg := config.LoadConfig(".env")

	log.Println("DevLink chat client starting...")
	log.Printf("Backend: %s", cfg.BaseURL)

	creds := session.NewCredStore(cfg.CredentialsFile)
	apiClient := api.NewClient(cfg.BaseURL, creds, &api.ClientOptions{Timeout: cfg.RequestTimeout})
	pres := presence.NewStore()
	sock := socket.NewManager(socket.Options{
		URL:                 cfg.SocketURL,
		ReconnectBaseDelay:  cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:   cfg.ReconnectMaxDelay,
		ReconnectMaxRetries: cfg.ReconnectMaxRetries,
	}, pres)
	sock.OnStateChange(func(s socket.State) {
		log.Printf("Connection state: %s", s)
	})

	notifier := notify.LogNotifier{}
	sess := session.NewStore(apiClient, creds, sock, pres, notifier)

	ctx := context.Background()
	if err := signIn(ctx, sess, *email, *password, *register, *name); err != nil {
		log.Fatalf("Could not sign in: %v", err)
	}
	self, _ := sess.User()
	log.Printf("Signed in as %s <%s>", self.Name, self.Email)

	view := chat.NewView(apiClient, sock, pres, self, notifier)
	view.Attach(ctx)
	defer view.Close()

	if err := view.RefreshContacts(ctx); err != nil {
		log.Printf("Could not load contacts: %v", err)
	}

	view.SetOnUpdate(func() {
		if conv, ok := view.Conversation(); ok && len(conv.Messages) > 0 {
			last := conv.Messages[len(conv.Messages)-1]
			if last.SenderID != self.ID {
				fmt.Printf("\n%s: %s\n> ", conv.Peer.Name, last.Text)
			}
		}
	})

	printContacts(view)
	repl(ctx, view, sess)
}

func signIn(ctx context.Context, sess *session.Store, email, password string, register bool, name string) error {
	if email == "" {
		if err := sess.Restore(ctx); err == nil {
			return nil
		}
		return fmt.Errorf("no persisted session; pass -email and -password")
	}
	if register {
		return sess.Register(ctx, name, email, password)
	}
	return sess.Login(ctx, email, password)
}

func printContacts(view *chat.View) {
	fmt.Println("Contacts:")
	for _, c := range view.Contacts() {
		badge := " "
		if c.Status == models.StatusOnline {
			badge = "*"
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
		}
		fmt.Printf("  %s %s%s\n", badge, c.Name, unread)
	}
}

func repl(ctx context.Context, view *chat.View, sess *session.Store) {
	fmt.Println(`Commands: /contacts, /open <name>, /logout, /quit. Anything else is sent to the open conversation.`)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/logout":
			sess.Logout(ctx)
			return
		case line == "/contacts":
			if err := view.RefreshContacts(ctx); err != nil {
				fmt.Printf("refresh failed: %v\n", err)
			}
			printContacts(view)
		case strings.HasPrefix(line, "/open "):
			openByName(ctx, view, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
		case line != "":
			if _, err := view.SendMessage(ctx, line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
		fmt.Print("> ")
	}
}

func openByName(ctx context.Context, view *chat.View, name string) {
	for _, c := range view.FilterContacts(name) {
		if err := view.SelectPeer(ctx, c.ID); err != nil {
			fmt.Printf("open failed: %v\n", err)
			return
		}
		conv, _ := view.Conversation()
		fmt.Printf("--- %s (%s) ---\n", conv.Peer.Name, conv.Peer.Status)
		for _, m := range conv.Messages {
			prefix := conv.Peer.Name
			if m.SenderID != conv.Peer.ID {
				prefix = "me"
			}
			fmt.Printf("%s: %s\n", prefix, m.Text)
		}
		return
	}
	fmt.Printf("no contact matching %q\n", name)
}
