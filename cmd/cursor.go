package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect pagination cursors",
}

var cursorDecodeCmd = &cobra.Command{
	Use:   "decode <token>",
	Short: "Decode a client cursor into its position",
	Long: `Decode an opaque pagination cursor as the engine would.

Example:
  $ feed-engine cursor decode "2025-01-02T03:04:05Z|5d0e6b4c-6a8f-4a55-9f4e-0d3f8a1c2b7e"
  {
    "kind": "compound",
    "createdAt": "2025-01-02T03:04:05Z",
    "id": "5d0e6b4c-6a8f-4a55-9f4e-0d3f8a1c2b7e"
  }`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := describeCursor(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	cursorCmd.AddCommand(cursorDecodeCmd)
	rootCmd.AddCommand(cursorCmd)
}

type cursorView struct {
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id,omitempty"`
	Score     *int64    `json:"score,omitempty"`
}

func describeCursor(token string) (string, error) {
	pos, err := domain.DecodeCursor(token)
	if err != nil {
		return "", err
	}

	view := cursorView{CreatedAt: pos.CreatedAt, ID: pos.ID}
	switch pos.Kind {
	case domain.CursorInstant:
		view.Kind = "instant"
	case domain.CursorCompound:
		view.Kind = "compound"
	case domain.CursorRanked:
		view.Kind = "ranked"
		view.Score = &pos.Score
	}

	raw, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
