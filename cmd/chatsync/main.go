package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/telecarehq/chatsync/internal/chat"
	"github.com/telecarehq/chatsync/internal/client"
	"github.com/telecarehq/chatsync/internal/config"
	"github.com/telecarehq/chatsync/internal/models"
	"github.com/telecarehq/chatsync/internal/socket"
	"github.com/telecarehq/chatsync/internal/store"
	"github.com/telecarehq/chatsync/internal/stubserver"
	"github.com/telecarehq/chatsync/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:   "chatsync",
		Short: "Telehealth chat synchronization client and stub backend",
	}

	root.AddCommand(stubCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(conversationsCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(blastCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.AppEnv == "development" || cfg.AppEnv == "test" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func stubCmd() *cobra.Command {
	var seedDemo bool

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run the in-memory stub chat backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			server := stubserver.New(cfg.JWTSecret, logger)
			if seedDemo {
				seedDemoData(server)
				logger.Info("seeded demo conversations and directory")
			}
			return server.Listen(":" + cfg.Port)
		},
	}

	cmd.Flags().BoolVar(&seedDemo, "seed-demo", true, "seed demo conversations and a staff directory")
	return cmd
}

func tokenCmd() *cobra.Command {
	var userID string
	var role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token for the stub backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}

			token, err := utils.GenerateToken(userID, role, cfg.JWTSecret)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "1", "user id embedded in the token")
	cmd.Flags().StringVar(&role, "role", "admin", "role embedded in the token")
	return cmd
}

func buildSynchronizer(cfg *config.Config, logger *zap.Logger) *chat.Synchronizer {
	api := client.New(cfg.APIBaseURL, cfg.AuthToken, logger)
	sender := socket.NewSender(cfg.SocketURL, cfg.AuthToken, logger)
	return chat.NewSynchronizer(store.NewConversationStore(), api, sender, models.Role(cfg.Role), logger)
}

func conversationsCmd() *cobra.Command {
	var unresolvedOnly bool
	var unreadOnly bool
	var search string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations for the configured role",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			sync := buildSynchronizer(cfg, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := sync.RefreshConversations(ctx, client.ConversationQuery{
				Role:           models.Role(cfg.Role),
				UnresolvedOnly: unresolvedOnly,
				UnreadOnly:     unreadOnly,
				Search:         search,
			}); err != nil {
				return err
			}

			printConversations(sync.Store().Conversations(models.Role(cfg.Role)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unresolvedOnly, "unresolved", false, "only unresolved threads")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only threads with unread messages")
	cmd.Flags().StringVar(&search, "search", "", "filter by counterpart name")
	return cmd
}

func sendCmd() *cobra.Command {
	var to int64
	var message string
	var filePath string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message over the socket and print the thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			sync := buildSynchronizer(cfg, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			conversation, err := findConversation(ctx, sync, models.Role(cfg.Role), to)
			if err != nil {
				return err
			}
			if err := sync.SelectConversation(ctx, conversation); err != nil {
				return err
			}

			compose := &chat.Compose{Content: message}
			if filePath != "" {
				file, err := os.Open(filePath)
				if err != nil {
					return err
				}
				defer file.Close()
				compose.Attachment = file
				compose.AttachmentName = file.Name()
			}

			acked, err := sync.Send(ctx, compose)
			if err != nil {
				return err
			}
			fmt.Printf("delivered #%d at %s\n", acked.ID, acked.CreatedAt.Format(time.RFC3339))

			for _, m := range sync.Store().Messages() {
				fmt.Printf("  [%d -> %d] %s\n", m.SenderID, m.ReceiverID, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&to, "to", 0, "counterpart user id")
	cmd.Flags().StringVar(&message, "message", "", "message text")
	cmd.Flags().StringVar(&filePath, "file", "", "attachment path")
	cmd.MarkFlagRequired("to")
	return cmd
}

func blastCmd() *cobra.Command {
	var all bool
	var users []int64
	var message string
	var email bool
	var filePath string

	cmd := &cobra.Command{
		Use:   "blast",
		Short: "Broadcast one message and print the refetched conversation list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			sync := buildSynchronizer(cfg, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var attachment io.Reader
			var attachmentName string
			if filePath != "" {
				file, err := os.Open(filePath)
				if err != nil {
					return err
				}
				defer file.Close()
				attachment = file
				attachmentName = file.Name()
			}

			resp, err := sync.SendBlast(ctx, models.BlastRequest{
				SendToAll:   all,
				UserIDs:     users,
				Message:     message,
				IsSendEmail: email,
			}, attachmentName, attachment)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)

			printConversations(sync.Store().Conversations(models.Role(cfg.Role)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "send to every conversation")
	cmd.Flags().Int64SliceVar(&users, "users", nil, "recipient user ids")
	cmd.Flags().StringVar(&message, "message", "", "message text")
	cmd.Flags().BoolVar(&email, "email", false, "also deliver by email")
	cmd.Flags().StringVar(&filePath, "file", "", "attachment path")
	cmd.MarkFlagRequired("message")
	return cmd
}

// findConversation looks the counterpart up in the refreshed list so the
// selected conversation carries real room state; an unknown counterpart
// still gets a bare selection so the backend can decide.
func findConversation(ctx context.Context, sync *chat.Synchronizer, role models.Role, counterpartID int64) (models.Conversation, error) {
	if err := sync.RefreshConversations(ctx, client.ConversationQuery{Role: role}); err != nil {
		return models.Conversation{}, err
	}
	for _, conversation := range sync.Store().Conversations(role) {
		if conversation.OtherUser.ID == counterpartID {
			return conversation, nil
		}
	}
	return models.Conversation{OtherUser: models.ChatUser{ID: counterpartID, Role: role}}, nil
}

func printConversations(conversations []models.Conversation) {
	if len(conversations) == 0 {
		fmt.Println("no conversations")
		return
	}
	for _, conversation := range conversations {
		last := ""
		if conversation.LastMessage != nil {
			last = conversation.LastMessage.Content
		}
		fmt.Printf("%-6d %-24s %-10s unread=%-3d %s\n",
			conversation.OtherUser.ID,
			conversation.OtherUser.FullName(),
			conversation.ChatRoom.Status,
			conversation.UnreadCount,
			last)
	}
}

func seedDemoData(server *stubserver.Server) {
	now := time.Now().UTC()
	server.Seed(
		stubserver.ThreadSeed{
			Counterpart: models.ChatUser{ID: 7, FirstName: "Pat", LastName: "Lee", Role: models.RolePatient},
			RoomStatus:  models.RoomStatusUnresolved,
			Unread:      2,
			PlanName:    "Weight Management",
			PaymentType: "subscription",
			Messages: []models.Message{
				{SenderID: 7, ReceiverID: 1, Content: "Hi, I have a question about my refill", CreatedAt: now.Add(-2 * time.Hour)},
				{SenderID: 1, ReceiverID: 7, Content: "Of course, go ahead", CreatedAt: now.Add(-90 * time.Minute)},
			},
		},
		stubserver.ThreadSeed{
			Counterpart: models.ChatUser{ID: 8, FirstName: "Sam", LastName: "Reyes", Role: models.RolePatient},
			RoomStatus:  models.RoomStatusResolved,
			Messages: []models.Message{
				{SenderID: 8, ReceiverID: 1, Content: "Thanks, see you next month", CreatedAt: now.Add(-26 * time.Hour)},
			},
		},
		stubserver.ThreadSeed{
			Counterpart: models.ChatUser{ID: 11, FirstName: "John", LastName: "Smith", Role: models.RoleProvider},
			RoomStatus:  models.RoomStatusUnresolved,
			Messages: []models.Message{
				{SenderID: 11, ReceiverID: 1, Content: "Can you review the new intake form?", CreatedAt: now.Add(-3 * time.Hour)},
			},
		},
	)
	server.SeedDirectory(
		models.DirectoryUser{ID: 11, FirstName: "John", LastName: "Smith", Role: models.RoleProvider},
		models.DirectoryUser{ID: 12, FirstName: "Joanna", LastName: "Lee", Role: models.RoleAdmin},
		models.DirectoryUser{ID: 13, FirstName: "Casey", LastName: "Brown", Role: models.RoleProvider},
	)
}
