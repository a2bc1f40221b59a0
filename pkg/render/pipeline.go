package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/abhay-lal/Visper/internal/models"
	"github.com/abhay-lal/Visper/internal/types"
	"github.com/abhay-lal/Visper/pkg/search"
)

// The two fixed summarization questions asked of every repository.
var repoQuestions = []string{
	"What is the purpose of this repository and what problem does it solve?",
	"What are the main components of this repository and how do they work together?",
}

// QA is the slice of the search engine the pipeline needs.
type QA interface {
	Search(ctx context.Context, req search.Request) (*models.SearchResult, error)
}

type PipelineConfig struct {
	OutputDir     string
	SlideCount    int
	QuestionLimit int
	// RenderCommand, when set, is invoked as
	//   <command> <slides.json> <narration.txt> <out.mp4>
	// to produce the video artifact. Empty leaves encoding out entirely.
	RenderCommand string
	ReadmeContext string
}

// Slide is one rendered deck entry.
type Slide struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Deck is the slides.json artifact.
type Deck struct {
	Repo   string  `json:"repo"`
	Owner  string  `json:"owner"`
	Slides []Slide `json:"slides"`
}

// Artifacts lists the files the pipeline produced. VideoPath is empty when
// no render command is configured.
type Artifacts struct {
	SlidesPath    string
	NarrationPath string
	VideoPath     string
}

// Pipeline turns corpus answers into a narrated slide deck and, when a
// render command is configured, a video artifact.
type Pipeline struct {
	config    PipelineConfig
	qa        QA
	generator types.Generator
}

func NewWithConfig(config PipelineConfig, qa QA, generator types.Generator) *Pipeline {
	if config.OutputDir == "" {
		config.OutputDir = "output"
	}
	if config.SlideCount == 0 {
		config.SlideCount = 5
	}
	if config.QuestionLimit == 0 {
		config.QuestionLimit = 8
	}

	return &Pipeline{
		config:    config,
		qa:        qa,
		generator: generator,
	}
}

// Run executes the full render sequence for one repository.
func (p *Pipeline) Run(ctx context.Context, owner, repo string) (*Artifacts, error) {
	if err := os.MkdirAll(p.config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %v", err)
	}

	answers, err := p.askQuestions(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	narration, err := p.generateNarration(ctx, owner, repo, answers)
	if err != nil {
		return nil, err
	}

	deck := buildDeck(owner, repo, narration, p.config.SlideCount)

	artifacts := &Artifacts{
		SlidesPath:    filepath.Join(p.config.OutputDir, "slides.json"),
		NarrationPath: filepath.Join(p.config.OutputDir, "narration.txt"),
	}

	deckJSON, err := json.MarshalIndent(deck, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode slide deck: %v", err)
	}
	if err := os.WriteFile(artifacts.SlidesPath, deckJSON, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write slides: %v", err)
	}
	if err := os.WriteFile(artifacts.NarrationPath, []byte(narration), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write narration: %v", err)
	}

	if p.config.RenderCommand != "" {
		artifacts.VideoPath = filepath.Join(p.config.OutputDir, fmt.Sprintf("%s-%s.mp4", owner, repo))
		cmd := exec.CommandContext(ctx, p.config.RenderCommand,
			artifacts.SlidesPath, artifacts.NarrationPath, artifacts.VideoPath)
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("render command failed: %v: %s", err, strings.TrimSpace(string(out)))
		}
	}

	return artifacts, nil
}

func (p *Pipeline) askQuestions(ctx context.Context, owner, repo string) ([]string, error) {
	answers := make([]string, 0, len(repoQuestions))

	for _, question := range repoQuestions {
		result, err := p.qa.Search(ctx, search.Request{
			Query: question,
			Repo:  repo,
			Owner: owner,
			Limit: p.config.QuestionLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to answer %q: %v", question, err)
		}
		answers = append(answers, result.Summary)
	}

	return answers, nil
}

func (p *Pipeline) generateNarration(ctx context.Context, owner, repo string, answers []string) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Write a short, engaging narration script (around %d paragraphs) for a slide-deck video introducing the GitHub repository %s/%s.\n\n",
		p.config.SlideCount, owner, repo)
	if p.config.ReadmeContext != "" {
		fmt.Fprintf(&prompt, "README summary:\n%s\n\n", p.config.ReadmeContext)
	}
	for i, answer := range answers {
		fmt.Fprintf(&prompt, "Q: %s\nA: %s\n\n", repoQuestions[i], answer)
	}
	prompt.WriteString("Separate paragraphs with blank lines. Plain prose only, no headings or markup.")

	narration, err := p.generator.Generate(ctx, prompt.String())
	if err != nil {
		return "", fmt.Errorf("failed to generate narration: %v", err)
	}

	return strings.TrimSpace(narration), nil
}

// buildDeck splits the narration into at most slideCount slides, one
// paragraph per slide, folding any excess paragraphs into the last slide.
func buildDeck(owner, repo, narration string, slideCount int) Deck {
	paragraphs := splitParagraphs(narration)

	if len(paragraphs) > slideCount {
		head := paragraphs[:slideCount-1]
		tail := strings.Join(paragraphs[slideCount-1:], "\n\n")
		paragraphs = append(append([]string{}, head...), tail)
	}

	slides := make([]Slide, len(paragraphs))
	for i, text := range paragraphs {
		title := fmt.Sprintf("%s/%s", owner, repo)
		if i > 0 {
			title = fmt.Sprintf("Part %d", i+1)
		}
		slides[i] = Slide{Index: i + 1, Title: title, Text: text}
	}

	return Deck{Repo: repo, Owner: owner, Slides: slides}
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	if len(paragraphs) == 0 {
		paragraphs = []string{strings.TrimSpace(text)}
	}
	return paragraphs
}
