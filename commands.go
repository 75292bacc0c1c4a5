package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"Chatter/pkg/chat"
	"Chatter/pkg/config"
	"Chatter/pkg/engine"
	"Chatter/pkg/logging"
	"Chatter/pkg/models"
)

func contactsCommand(opts []engine.Option) *cli.Command {
	return &cli.Command{
		Name:  "contacts",
		Usage: "Manage contacts",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a contact",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "avatar", Usage: "Emoji or initials"},
					&cli.StringFlag{Name: "presence", Value: string(models.PresenceOffline)},
				},
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					ct := a.AddContact(c.String("name"), c.String("avatar"), models.Presence(c.String("presence")))
					fmt.Fprintln(c.App.Writer, ct.ID)
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List contacts, favorites first",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					printContacts(c.App.Writer, a.GetContacts(), a.engine.Clock.Now())
					return nil
				}),
			},
			{
				Name:      "update",
				Usage:     "Change a contact",
				ArgsUsage: "CONTACT_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "avatar"},
					&cli.StringFlag{Name: "presence"},
				},
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					var patch chat.ContactPatch
					if c.IsSet("name") {
						v := c.String("name")
						patch.DisplayName = &v
					}
					if c.IsSet("avatar") {
						v := c.String("avatar")
						patch.AvatarGlyph = &v
					}
					if c.IsSet("presence") {
						p := models.Presence(c.String("presence"))
						if !p.Valid() {
							return fmt.Errorf("unknown presence: %s", p)
						}
						patch.Presence = &p
					}
					id, err := arg(c, 0, "CONTACT_ID")
					if err != nil {
						return err
					}
					ct, err := a.UpdateContact(id, patch)
					if err != nil {
						return err
					}
					printContacts(c.App.Writer, []models.Contact{ct}, a.engine.Clock.Now())
					return nil
				}),
			},
			{
				Name:      "remove",
				Usage:     "Delete a contact and the conversation with it",
				ArgsUsage: "CONTACT_ID",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					id, err := arg(c, 0, "CONTACT_ID")
					if err != nil {
						return err
					}
					return a.RemoveContact(id)
				}),
			},
			{
				Name:      "favorite",
				Usage:     "Toggle the favorite flag",
				ArgsUsage: "CONTACT_ID",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					id, err := arg(c, 0, "CONTACT_ID")
					if err != nil {
						return err
					}
					ct, err := a.ToggleFavorite(id)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "favorite=%t\n", ct.IsFavorite)
					return nil
				}),
			},
			{
				Name:      "block",
				Usage:     "Toggle the blocked flag",
				ArgsUsage: "CONTACT_ID",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					id, err := arg(c, 0, "CONTACT_ID")
					if err != nil {
						return err
					}
					ct, err := a.ToggleBlocked(id)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "blocked=%t\n", ct.IsBlocked)
					return nil
				}),
			},
			{
				Name:      "presence",
				Usage:     "Set a contact's presence",
				ArgsUsage: "CONTACT_ID online|away|busy|offline",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					id, err := arg(c, 0, "CONTACT_ID")
					if err != nil {
						return err
					}
					p, err := arg(c, 1, "PRESENCE")
					if err != nil {
						return err
					}
					_, err = a.SetPresence(id, models.Presence(p))
					return err
				}),
			},
		},
	}
}

func chatCommand(opts []engine.Option) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Read and write conversations",
		Subcommands: []*cli.Command{
			{
				Name:      "open",
				Usage:     "Print the conversation id for a contact, creating it if needed",
				ArgsUsage: "CONTACT_ID",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					id, err := arg(c, 0, "CONTACT_ID")
					if err != nil {
						return err
					}
					conv, err := a.OpenChat(id)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, conv.ID)
					return nil
				}),
			},
			{
				Name:      "group",
				Usage:     "Create a group conversation",
				ArgsUsage: "CONTACT_ID CONTACT_ID...",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "name", Required: true}},
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					conv, err := a.CreateGroup(c.String("name"), c.Args().Slice())
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, conv.ID)
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List conversations, most recent first",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					printConversations(c.App.Writer, a, a.GetConversations())
					return nil
				}),
			},
			{
				Name:      "show",
				Usage:     "Print the messages of a conversation",
				ArgsUsage: "CONVERSATION_ID",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					id, err := arg(c, 0, "CONVERSATION_ID")
					if err != nil {
						return err
					}
					msgs, err := a.GetMessagesForConversation(id)
					if err != nil {
						return err
					}
					printMessages(c.App.Writer, msgs, a.engine.Clock.Now())
					return nil
				}),
			},
			{
				Name:      "send",
				Usage:     "Send a text message to a conversation or contact",
				ArgsUsage: "CONVERSATION_ID|CONTACT_ID TEXT...",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "reply-to", Usage: "Quote message `ID`"}},
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					target, err := arg(c, 0, "TARGET")
					if err != nil {
						return err
					}
					text := strings.Join(c.Args().Tail(), " ")
					var m MessageView
					if r := c.String("reply-to"); r != "" {
						m, err = a.ReplyToMessage(target, r, text)
					} else {
						m, err = a.SendMessage(target, text)
					}
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, m.ID)
					return nil
				}),
			},
			{
				Name:      "edit",
				Usage:     "Replace a message body",
				ArgsUsage: "CONVERSATION_ID MESSAGE_ID TEXT...",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					conv, msg, err := convAndMessage(c)
					if err != nil {
						return err
					}
					_, err = a.EditMessage(conv, msg, strings.Join(c.Args().Slice()[2:], " "))
					return err
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a message",
				ArgsUsage: "CONVERSATION_ID MESSAGE_ID",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					conv, msg, err := convAndMessage(c)
					if err != nil {
						return err
					}
					a.DeleteMessage(conv, msg)
					return nil
				}),
			},
			{
				Name:      "react",
				Usage:     "Toggle a reaction",
				ArgsUsage: "CONVERSATION_ID MESSAGE_ID EMOJI",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					conv, msg, err := convAndMessage(c)
					if err != nil {
						return err
					}
					emoji, err := arg(c, 2, "EMOJI")
					if err != nil {
						return err
					}
					m, err := a.ToggleReaction(conv, msg, emoji)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, formatReactions(m.Reactions))
					return nil
				}),
			},
			{
				Name:      "read",
				Usage:     "Mark every message of a conversation read",
				ArgsUsage: "CONVERSATION_ID",
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					id, err := arg(c, 0, "CONVERSATION_ID")
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "marked %d\n", a.MarkConversationRead(id))
					return nil
				}),
			},
			{
				Name:      "settings",
				Usage:     "Change auto-delete for future messages",
				ArgsUsage: "CONVERSATION_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "auto-delete", Value: true},
					&cli.DurationFlag{Name: "delay", Value: 5 * time.Second},
				},
				Action: withApp(opts, func(c *cli.Context, a *App) error {
					id, err := arg(c, 0, "CONVERSATION_ID")
					if err != nil {
						return err
					}
					conv, err := a.UpdateSettings(id, c.Bool("auto-delete"), c.Duration("delay"))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "auto_delete=%t delay=%s\n", conv.Settings.AutoDeleteEnabled, conv.Settings.AutoDeleteDelay)
					return nil
				}),
			},
		},
	}
}

func watchCommand(opts []engine.Option) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream change events as JSON lines while pending messages expire",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "for", Usage: "Stop after `DURATION`; zero waits for Ctrl-C"},
		},
		Action: withApp(opts, func(c *cli.Context, a *App) error {
			ctx := c.Context
			a.startEventListener(ctx)
			if d := c.Duration("for"); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
				}
				return nil
			}
			<-ctx.Done()
			return nil
		}),
	}
}

func metricsCommand(opts []engine.Option) *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Print the counters collected during this run",
		Action: withApp(opts, func(c *cli.Context, a *App) error {
			return a.WriteMetrics(c.App.Writer)
		}),
	}
}

func backendsCommand(opts []engine.Option) *cli.Command {
	return &cli.Command{
		Name:  "backends",
		Usage: "List storage backends",
		Action: withApp(opts, func(c *cli.Context, a *App) error {
			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDURABLE\tDESCRIPTION")
			for _, b := range a.GetAvailableBackends() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", b.ID, b.Name, b.Durable, b.Description)
			}
			return w.Flush()
		}),
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "chatter.toml"},
				},
				Action: func(c *cli.Context) error {
					path := c.String("output")
					if err := config.InitConfig(path); err != nil {
						return fmt.Errorf("failed to initialize config: %w", err)
					}
					fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", path)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Validate the effective configuration",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if err := cfg.Validate(); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "Configuration is valid")
					return nil
				},
			},
		},
	}
}

func logsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Maintain component log files",
		Subcommands: []*cli.Command{
			{
				Name:  "clean",
				Usage: "Delete log files older than --days",
				Flags: []cli.Flag{&cli.IntFlag{Name: "days", Value: 7}},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					dir := cfg.Log.Dir
					if dir == "" {
						if dir, err = logging.DefaultDir(); err != nil {
							return err
						}
					}
					n, err := logging.CleanupOldLogs(dir, c.Int("days"))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "removed %d\n", n)
					return nil
				},
			},
		},
	}
}

func arg(c *cli.Context, i int, name string) (string, error) {
	v := c.Args().Get(i)
	if v == "" {
		return "", fmt.Errorf("missing %s", name)
	}
	return v, nil
}

func convAndMessage(c *cli.Context) (string, string, error) {
	conv, err := arg(c, 0, "CONVERSATION_ID")
	if err != nil {
		return "", "", err
	}
	msg, err := arg(c, 1, "MESSAGE_ID")
	if err != nil {
		return "", "", err
	}
	return conv, msg, nil
}

func printContacts(out io.Writer, contacts []models.Contact, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRESENCE\tFLAGS\tLAST SEEN")
	for _, ct := range contacts {
		var flags []string
		if ct.IsFavorite {
			flags = append(flags, "fav")
		}
		if ct.IsBlocked {
			flags = append(flags, "blocked")
		}
		seen := "-"
		if ct.LastSeenAt != nil {
			seen = humanize.RelTime(*ct.LastSeenAt, now, "ago", "from now")
		}
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\n", ct.ID, ct.AvatarGlyph, ct.DisplayName, ct.Presence, strings.Join(flags, ","), seen)
	}
	w.Flush()
}

func printConversations(out io.Writer, a *App, convs []models.Conversation) {
	now := a.engine.Clock.Now()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWITH\tMESSAGES\tUNREAD\tAUTO-DELETE\tACTIVE")
	for _, conv := range convs {
		with := conv.GroupName
		if !conv.IsGroup {
			for _, id := range conv.ParticipantIDs {
				if id == a.engine.Config.User.ID {
					continue
				}
				with = id
				if ct, ok := a.engine.Contacts.Contact(id); ok {
					with = ct.DisplayName
				}
			}
		}
		autoDelete := "off"
		if conv.Settings.AutoDeleteEnabled {
			autoDelete = conv.Settings.AutoDeleteDelay.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			conv.ID, with, len(conv.Messages), a.engine.Conversations.UnreadCount(conv.ID),
			autoDelete, humanize.RelTime(conv.LastActivityAt, now, "ago", "from now"))
	}
	w.Flush()
}

func printMessages(out io.Writer, msgs []MessageView, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, m := range msgs {
		var marks []string
		if m.IsEdited {
			marks = append(marks, "edited")
		}
		if m.Ephemeral {
			marks = append(marks, "expires "+humanize.RelTime(m.ExpiresAt(), now, "ago", "from now"))
		}
		if m.Metadata.ReplyToID != "" {
			marks = append(marks, "reply to "+m.Metadata.ReplyToID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.SenderID, m.Text, formatReactions(m.Reactions), strings.Join(marks, "; "))
	}
	w.Flush()
}

func formatReactions(rs []models.Reaction) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, fmt.Sprintf("%s×%d", r.Emoji, r.Count()))
	}
	return strings.Join(parts, " ")
}
