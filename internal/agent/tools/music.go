package tools

import (
	"context"
	"fmt"

	"github.com/taxi-assistant/server/internal/agent/model"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

const volumeStep = 2

var (
	askMusicOption = model.UIOption{ID: "ask_music", Label: "Sì, metti musica 🎵"}
	noThanksOption = model.UIOption{ID: "cancel", Label: "No grazie"}
)

// GenreOptions is the genre menu; withDecline appends the "no_music" button.
func GenreOptions(withDecline bool) []model.UIOption {
	opts := make([]model.UIOption, 0, len(model.MusicGenres)+1)
	for _, g := range model.MusicGenres {
		label := g
		if g == "HipHop" {
			label = "Hip Hop"
		}
		opts = append(opts, model.UIOption{ID: "genre:" + g, Label: label})
	}
	if withDecline {
		opts = append(opts, model.UIOption{ID: "no_music", Label: "No grazie"})
	}
	return opts
}

func isPlaying(s *model.Session) bool { return s != nil && s.Music.Playing }

func musicTools(repo model.POIRepository) []Tool {
	m := &musicHandlers{repo: repo}
	return []Tool{
		{
			ID:          "music_play",
			Name:        "Metti Musica",
			Description: "Avvia la riproduzione musicale. Usa quando l'utente vuole ascoltare musica.",
			Patterns: []string{
				"metti musica", "metti la musica", "avvia musica",
				"voglio ascoltare musica", "musica per favore",
				"metti jazz", "metti rock", "metti pop", "metti classica",
				"metti hip hop", "metti elettronica",
				"ascoltare jazz", "ascoltare rock", "ascoltare pop",
			},
			Examples:  []string{"metti un po' di musica", "voglio ascoltare della musica", "metti jazz"},
			Category:  model.CategoryMusic,
			Available: func(s *model.Session) bool { return !isPlaying(s) },
			Run:       m.play,
		},
		{
			ID:          "music_stop",
			Name:        "Ferma Musica",
			Description: "Ferma la riproduzione musicale.",
			Patterns: []string{
				"ferma la musica", "spegni la musica", "stop musica",
				"basta musica", "togli la musica", "smetti con la musica",
			},
			Examples:  []string{"ferma la musica", "spegni la musica"},
			Category:  model.CategoryMusic,
			Available: isPlaying,
			Run:       m.stop,
		},
		{
			ID:          "music_pause",
			Name:        "Pausa Musica",
			Description: "Mette in pausa la musica senza fermarla completamente.",
			Patterns:    []string{"metti in pausa la musica", "pausa la musica"},
			Examples:    []string{"metti in pausa la musica"},
			Category:    model.CategoryMusic,
			Available:   func(s *model.Session) bool { return isPlaying(s) && !s.Music.Paused },
			Run:         m.pause,
		},
		{
			ID:          "music_resume",
			Name:        "Riprendi Musica",
			Description: "Riprende la musica dalla pausa.",
			Patterns:    []string{"riprendi la musica", "continua la musica", "riavvia la musica"},
			Examples:    []string{"riprendi la musica"},
			Category:    model.CategoryMusic,
			Available:   func(s *model.Session) bool { return isPlaying(s) && s.Music.Paused },
			Run:         m.resume,
		},
		{
			ID:          "volume_up",
			Name:        "Alza Volume",
			Description: "Aumenta il volume della musica.",
			Patterns:    []string{"alza il volume", "volume più alto", "alza volume", "più volume", "più forte", "non sento"},
			Examples:    []string{"non sento bene", "puoi alzare?", "metti più forte"},
			Category:    model.CategoryMusic,
			Available:   isPlaying,
			Run:         adjustVolume(volumeStep, "🔊 Volume alzato a %d/10"),
		},
		{
			ID:          "volume_down",
			Name:        "Abbassa Volume",
			Description: "Diminuisce il volume della musica.",
			Patterns:    []string{"abbassa il volume", "volume più basso", "abbassa volume", "meno volume", "più piano", "troppo forte", "troppo alto"},
			Examples:    []string{"il volume è troppo forte", "puoi abbassare un po'?"},
			Category:    model.CategoryMusic,
			Available:   isPlaying,
			Run:         adjustVolume(-volumeStep, "🔉 Volume abbassato a %d/10"),
		},
		{
			ID:          "volume_set",
			Name:        "Imposta Volume",
			Description: "Imposta il volume a un livello specifico (1-10).",
			Patterns:    []string{"volume a", "volume al", "metti il volume"},
			Examples:    []string{"metti il volume a 5", "volume al 50%"},
			Category:    model.CategoryMusic,
			Available:   isPlaying,
			Run:         m.setVolume,
		},
		{
			ID:          "change_genre",
			Name:        "Cambia Genere",
			Description: "Cambia il genere musicale.",
			Patterns: []string{
				"cambia genere", "cambiare genere", "altro genere", "cambio genere",
				"altra musica", "canzone diversa",
				"metti jazz", "metti rock", "metti pop", "metti classica",
				"cambia in jazz", "cambia in rock", "passa a jazz", "passa a rock",
			},
			Examples:  []string{"non mi piace questa musica", "metti qualcos'altro", "metti jazz"},
			Category:  model.CategoryMusic,
			Available: isPlaying,
			Run:       m.changeGenre,
		},
	}
}

type musicHandlers struct {
	repo model.POIRepository
}

func switchGenre(tc model.ToolContext, genre string) *model.ToolResult {
	tc.State.StartMusic(genre)
	return model.Text(fmt.Sprintf("🎵 Cambio a %s!", genre)).WithCommands(model.PlayMusic(genre))
}

func (m *musicHandlers) play(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	genre := tc.Param("genre")

	if tc.Music.Playing {
		if normalized, ok := model.NormalizeGenre(genre); ok && normalized != tc.Music.Genre {
			return switchGenre(tc, normalized), nil
		}
		return model.Text(fmt.Sprintf("🎵 La musica è già accesa (%s). Vuoi cambiare genere?", tc.Music.Genre)).
			WithOptions(
				model.UIOption{ID: "change_music", Label: "Cambia genere"},
				model.UIOption{ID: "music_ok", Label: "Va bene così"},
			), nil
	}

	if genre == "" && m.repo != nil {
		pref, err := m.repo.MusicPreference(ctx, tc.UserID)
		if err != nil {
			logx.Warn().Err(err).Str("user_id", tc.UserID).Msg("music preference lookup failed")
		}
		genre = pref
	}
	if genre == "" {
		tc.State.SetPending(model.PendingMusicGenre)
		return model.Text("🎵 Che genere preferisci?").WithOptions(GenreOptions(true)...), nil
	}

	normalized, ok := model.NormalizeGenre(genre)
	if !ok {
		return model.Text(fmt.Sprintf("Non conosco il genere '%s'. Prova con Pop, Rock, Jazz, Classica...", genre)), nil
	}
	tc.State.StartMusic(normalized)
	return model.Text(fmt.Sprintf("🎵 Avvio %s! Buon ascolto!", normalized)).WithCommands(model.PlayMusic(normalized)), nil
}

func (m *musicHandlers) stop(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	if !tc.Music.Playing {
		return model.Text("🔇 La musica è già spenta. Vuoi che la accenda?").
			WithOptions(askMusicOption, noThanksOption), nil
	}
	tc.State.StopMusic()
	return model.Text("🔇 Musica fermata. Se vuoi riascoltarla, dimmelo!").
		WithCommands(model.Simple(model.CommandStopMusic)), nil
}

func (m *musicHandlers) pause(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	if !tc.Music.Playing {
		return model.Text("La musica non è in riproduzione."), nil
	}
	tc.State.PauseMusic()
	return model.Text("⏸️ Musica in pausa.").
		WithOptions(model.UIOption{ID: "resume_music", Label: "▶️ Riprendi"}).
		WithCommands(model.Simple(model.CommandPauseMusic)), nil
}

func (m *musicHandlers) resume(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	if !tc.Music.Playing {
		return model.Text("Non c'è musica da riprendere. Vuoi che la metta?").
			WithOptions(askMusicOption, noThanksOption), nil
	}
	tc.State.ResumeMusic()
	return model.Text(fmt.Sprintf("▶️ Riprendo %s!", tc.Music.Genre)).
		WithCommands(model.Simple(model.CommandResumeMusic)), nil
}

func adjustVolume(delta int, format string) RunFunc {
	return func(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
		v := tc.State.AdjustVolume(delta)
		return model.Text(fmt.Sprintf(format, v)).WithCommands(model.SetVolume(v)), nil
	}
}

func (m *musicHandlers) setVolume(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	requested, ok := tc.IntParam("volume")
	if !ok {
		requested = model.DefaultVolume
	}
	v := tc.State.SetVolume(requested)
	return model.Text(fmt.Sprintf("🔊 Volume impostato a %d/10", v)).WithCommands(model.SetVolume(v)), nil
}

func (m *musicHandlers) changeGenre(ctx context.Context, tc model.ToolContext) (*model.ToolResult, error) {
	if normalized, ok := model.NormalizeGenre(tc.Param("genre")); ok {
		return switchGenre(tc, normalized), nil
	}
	tc.State.SetPending(model.PendingMusicGenre)
	return model.Text("🎵 Che genere preferisci?").WithOptions(GenreOptions(false)...), nil
}
