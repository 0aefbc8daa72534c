package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/operator-console/internal/model"
	natsclient "github.com/capitalize-ai/operator-console/internal/nats"
)

var (
	emitGuest    string
	emitOperator string
)

func init() {
	emitCmd.Flags().StringVar(&emitGuest, "guest", "guest", "guest id of the sender")
	emitCmd.Flags().StringVar(&emitOperator, "from-operator", "", "send as this operator user id instead of a guest")
	rootCmd.AddCommand(emitCmd)
}

var emitCmd = &cobra.Command{
	Use:   "emit <conversation-id> <content>",
	Short: "Publish a chat-message event to the NATS event stream",
	Long:  "Publishes a chat-message frame on the operator's NATS subject. Useful with EVENTS_TRANSPORT=nats to drive a running console without the backend.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := cmd.Context()
		client, err := connectNATS(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer client.Close()

		streams := natsclient.NewStreamManager(client)
		if err := streams.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}

		now := time.Now().UTC()
		msg := model.Message{
			ID:             model.MessageID(fmt.Sprint(now.UnixNano())),
			ConversationID: args[0],
			Type:           model.MessageTypeText,
			Content:        args[1],
			CreatedAt:      now,
		}
		if emitOperator != "" {
			msg.UserID = emitOperator
		} else {
			msg.GuestID = emitGuest
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		seq, err := streams.PublishFrame(ctx, cfg.OperatorID, model.Frame{
			Type:    model.EventTypeChatMessage,
			Payload: payload,
		})
		if err != nil {
			return err
		}
		log.Info("event published", zap.String("conversation_id", args[0]), zap.Uint64("seq", seq))
		return nil
	},
}
