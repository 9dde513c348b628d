package flock

import (
	"context"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/altcord/flock/model"
)

// discordEpochMS is the millisecond offset of Discord snowflake time.
const discordEpochMS = 1420070400000

// commandSearchWait is how long a search waits for the gateway's reply
// before giving up.
const commandSearchWait = 5 * time.Second

// searchNonce derives the request nonce the way the official client does: a
// snowflake built from the current second.
func searchNonce(now time.Time) string {
	return strconv.FormatInt((now.Unix()*1000-discordEpochMS)*4194304, 10)
}

// A SlashCommand is one invocable command of an application. Commands whose
// first option is a subcommand group are flattened: each subcommand becomes
// its own SlashCommand whose GlobalName joins the parent and subcommand
// names.
type SlashCommand struct {
	ID            string
	ApplicationID string
	Version       string
	Name          string
	SubCommand    string
	GlobalName    string
	Description   string
	Type          int
	Options       []model.ApplicationCommandOption
}

// An Application tracks one bot application whose slash commands the client
// wants to invoke. Search results are cached per application.
type Application struct {
	// ID is the application (bot) id.
	ID string

	mu     sync.Mutex
	cached []*SlashCommand
}

// NewApplication returns an application with an empty command cache.
func NewApplication(id string) *Application {
	return &Application{ID: id}
}

// CachedCommand returns the cached command with the given global name, or
// nil when no search has found it yet.
func (app *Application) CachedCommand(globalName string) *SlashCommand {
	app.mu.Lock()
	defer app.mu.Unlock()

	for _, c := range app.cached {
		if c.GlobalName == globalName {
			return c
		}
	}
	return nil
}

// SearchSlashCommands asks the gateway for this application's commands
// matching query in the given guild. The reply is correlated by the session;
// a reply that does not arrive within the wait window yields an empty
// result, not an error.
func (app *Application) SearchSlashCommands(ctx context.Context, a *Account, guildID, query string, limit int) ([]*SlashCommand, error) {
	s, err := a.liveSession()
	if err != nil {
		return nil, err
	}

	request := map[string]interface{}{
		"guild_id":       guildID,
		"nonce":          searchNonce(time.Now()),
		"type":           1,
		"application_id": app.ID,
		"query":          query,
		"limit":          limit,
	}

	frame, err := marshalPayload(OpRequestCommands, request)
	if err != nil {
		return nil, errors.Wrap(err, "flock: command search request")
	}

	reply := make(chan *model.ApplicationCommandsUpdate, 1)
	s.Correlate(frame, func(raw jsoniter.RawMessage) {
		var update model.ApplicationCommandsUpdate
		if err := json.Unmarshal(raw, &update); err != nil {
			return
		}
		select {
		case reply <- &update:
		default:
		}
	}, nil)

	var update *model.ApplicationCommandsUpdate
	select {
	case <-ctx.Done():
		s.clearCorrelation()
		return nil, ctx.Err()
	case <-time.After(commandSearchWait):
		s.clearCorrelation()
		return nil, nil
	case update = <-reply:
	}

	commands := app.flatten(update.ApplicationCommands)

	app.mu.Lock()
	for _, c := range commands {
		if app.lookupLocked(c.GlobalName) == nil {
			app.cached = append(app.cached, c)
		}
	}
	app.mu.Unlock()

	return commands, nil
}

func (app *Application) lookupLocked(globalName string) *SlashCommand {
	for _, c := range app.cached {
		if c.GlobalName == globalName {
			return c
		}
	}
	return nil
}

// flatten turns raw command documents into SlashCommands, splitting
// subcommand containers into one entry per subcommand. Commands belonging
// to other applications are dropped.
func (app *Application) flatten(raw []model.ApplicationCommand) []*SlashCommand {
	var out []*SlashCommand

	for _, cmd := range raw {
		if cmd.ApplicationID != app.ID {
			continue
		}

		if len(cmd.Options) > 0 && cmd.Options[0].Type == 1 {
			for _, sub := range cmd.Options {
				out = append(out, &SlashCommand{
					ID:            cmd.ID,
					ApplicationID: cmd.ApplicationID,
					Version:       cmd.Version,
					Name:          cmd.Name,
					SubCommand:    sub.Name,
					GlobalName:    cmd.Name + " " + sub.Name,
					Description:   sub.Description,
					Type:          cmd.Type,
					Options: []model.ApplicationCommandOption{{
						Type:    sub.Type,
						Name:    sub.Name,
						Options: sub.Options,
					}},
				})
			}
			continue
		}

		out = append(out, &SlashCommand{
			ID:            cmd.ID,
			ApplicationID: cmd.ApplicationID,
			Version:       cmd.Version,
			Name:          cmd.Name,
			GlobalName:    cmd.Name,
			Description:   cmd.Description,
			Type:          cmd.Type,
			Options:       cmd.Options,
		})
	}

	return out
}
