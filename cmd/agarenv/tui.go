package main

import (
	"fmt"
	"time"

	"github.com/brensch/agarenv/rollout"
	tea "github.com/charmbracelet/bubbletea"
)

const recentEpisodes = 10

type progressModel struct {
	runner    *rollout.Runner
	updates   <-chan rollout.Update
	extra     func() string
	startTime time.Time

	stats  rollout.Stats
	recent []string
	best   float64
	seen   int
}

func newProgressModel(r *rollout.Runner, updates <-chan rollout.Update, extra func() string) progressModel {
	return progressModel{
		runner:    r,
		updates:   updates,
		extra:     extra,
		startTime: time.Now(),
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForUpdate(updates <-chan rollout.Update) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		m.stats = m.runner.Stats()
		return m, tickCmd()
	case rollout.Update:
		if m.seen == 0 || msg.TotalReward > m.best {
			m.best = msg.TotalReward
		}
		m.seen++
		line := fmt.Sprintf("Worker %d: %s steps %d reward %.1f", msg.WorkerID, msg.EpisodeID[:8], msg.Steps, msg.TotalReward)
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > recentEpisodes {
			m.recent = m.recent[:recentEpisodes]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m progressModel) View() string {
	duration := time.Since(m.startTime)
	var episodesPerSec, stepsPerSec float64
	if duration.Seconds() >= 1 {
		episodesPerSec = float64(m.stats.Episodes) / duration.Seconds()
		stepsPerSec = float64(m.stats.Steps) / duration.Seconds()
	}

	s := fmt.Sprintf("Episodes:     %d\n", m.stats.Episodes)
	s += fmt.Sprintf("Steps:        %d\n", m.stats.Steps)
	s += fmt.Sprintf("Rows written: %d\n", m.stats.Rows)
	s += fmt.Sprintf("Flushes:      %d\n", m.stats.Flushes)
	s += fmt.Sprintf("Best reward:  %.1f\n", m.best)
	s += fmt.Sprintf("Duration:     %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Episodes/Sec: %.2f\n", episodesPerSec)
	s += fmt.Sprintf("Steps/Sec:    %.2f\n", stepsPerSec)
	if m.extra != nil {
		if line := m.extra(); line != "" {
			s += "Inference:    " + line + "\n"
		}
	}

	s += "\nRecent Episodes:\n"
	for _, e := range m.recent {
		s += e + "\n"
	}
	s += "\nPress q to quit.\n"
	return s
}
