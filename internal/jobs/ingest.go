package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fuzzjobs/internal/analysis"
	"github.com/kiranshivaraju/fuzzjobs/internal/store"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
	"github.com/kiranshivaraju/fuzzjobs/pkg/resultxml"
)

var resultKinds = map[resultxml.ResultType]models.ResultKind{
	resultxml.ResultAnalysis:   models.ResultKindTopEvent,
	resultxml.ResultSimulation: models.ResultKindSimulation,
	resultxml.ResultMincut:     models.ResultKindMincut,
}

// ingestDocument materializes a decoded backend document for job. Problems
// with the document itself are wrapped in ErrResultParse; storage errors are
// returned unchanged.
func ingestDocument(ctx context.Context, w store.ResultWriter, job *models.Job, doc *resultxml.Document, now time.Time) error {
	graphID := *job.GraphID

	if len(doc.Issues) > 0 {
		issues, err := analysis.InterpretIssues(doc.Issues)
		if err != nil {
			return parseError(err)
		}
		if !issues.Empty() {
			err := w.CreateResult(ctx, &models.Result{
				ID:        uuid.New(),
				GraphID:   graphID,
				JobID:     job.ID,
				Kind:      models.ResultKindGraphIssues,
				Issues:    &issues,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
		}
	}

	configIDs := make(map[string]uuid.UUID, len(doc.Configurations))
	if len(doc.Configurations) > 0 {
		if err := w.DeleteConfigurations(ctx, graphID); err != nil {
			return err
		}
		for _, c := range doc.Configurations {
			id, err := ingestConfiguration(ctx, w, job, c)
			if err != nil {
				return err
			}
			configIDs[c.ID] = id
		}
	}

	for _, r := range doc.Results {
		res, err := buildResult(job, r, configIDs, now)
		if err != nil {
			return parseError(err)
		}
		if err := w.CreateResult(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func ingestConfiguration(ctx context.Context, w store.ResultWriter, job *models.Job, c resultxml.Configuration) (uuid.UUID, error) {
	graphID := *job.GraphID

	costs := 0
	if c.Costs != "" {
		n, err := strconv.Atoi(c.Costs)
		if err != nil {
			return uuid.Nil, parseError(fmt.Errorf("configuration %q: costs %q", c.ID, c.Costs))
		}
		costs = n
	}

	cfg := &models.Configuration{
		ID:      uuid.New(),
		GraphID: graphID,
		JobID:   job.ID,
		Costs:   costs,
	}
	if err := w.CreateConfiguration(ctx, cfg); err != nil {
		return uuid.Nil, err
	}

	for _, ch := range c.Choices {
		node, err := resolveNode(ctx, w, graphID, ch.Key)
		if err != nil {
			return uuid.Nil, err
		}
		setting, err := choiceSetting(ctx, w, graphID, ch)
		if err != nil {
			return uuid.Nil, err
		}
		err = w.CreateNodeConfiguration(ctx, &models.NodeConfiguration{
			ID:              uuid.New(),
			ConfigurationID: cfg.ID,
			NodeID:          node.ID,
			Setting:         setting,
		})
		if err != nil {
			return uuid.Nil, err
		}
	}
	return cfg.ID, nil
}

// choiceSetting converts a decoded choice into its stored form. Feature
// choices name the chosen node by primary key; the stored setting uses the
// client id the editor knows it by.
func choiceSetting(ctx context.Context, w store.ResultWriter, graphID int64, ch resultxml.Choice) (models.ChoiceSetting, error) {
	setting := models.ChoiceSetting{Type: ch.Type}
	switch ch.Type {
	case models.ChoiceFeature:
		feature, err := resolveNode(ctx, w, graphID, ch.FeatureID)
		if err != nil {
			return models.ChoiceSetting{}, err
		}
		setting.FeatureID = &feature.ClientID
	case models.ChoiceInclusion:
		included := ch.Included
		setting.Included = &included
	case models.ChoiceRedundancy:
		n := ch.N
		setting.N = &n
	default:
		return models.ChoiceSetting{}, parseError(fmt.Errorf("%w: %q", resultxml.ErrUnknownChoice, ch.Type))
	}
	return setting, nil
}

func resolveNode(ctx context.Context, w store.ResultWriter, graphID int64, key string) (*models.Node, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return nil, parseError(fmt.Errorf("node key %q is not an integer", key))
	}
	node, err := w.ResolveNode(ctx, graphID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, parseError(fmt.Errorf("node %d not in graph %d", id, graphID))
	}
	return node, err
}

func buildResult(job *models.Job, r resultxml.Result, configIDs map[string]uuid.UUID, now time.Time) (*models.Result, error) {
	kind, ok := resultKinds[r.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", resultxml.ErrUnknownResult, r.Type)
	}

	v, err := analysis.InterpretValue(r)
	if err != nil {
		return nil, err
	}

	res := &models.Result{
		ID:          uuid.New(),
		GraphID:     *job.GraphID,
		JobID:       job.ID,
		Kind:        kind,
		Minimum:     v.Minimum,
		Maximum:     v.Maximum,
		Peak:        v.Peak,
		Reliability: v.Reliability,
		MTTF:        v.MTTF,
		Rounds:      v.Rounds,
		Failures:    v.Failures,
		Ratio:       v.Ratio,
		Points:      v.Points,
		CreatedAt:   now,
	}

	if r.ConfigID != "" {
		id, ok := configIDs[r.ConfigID]
		if !ok {
			return nil, fmt.Errorf("result %q references unknown configuration %q", r.ID, r.ConfigID)
		}
		res.ConfigurationID = &id
	}

	if len(r.Issues) > 0 {
		issues, err := analysis.InterpretIssues(r.Issues)
		if err != nil {
			return nil, err
		}
		if !issues.Empty() {
			res.Issues = &issues
		}
	}
	return res, nil
}

func parseError(err error) error {
	return fmt.Errorf("%w: %w", ErrResultParse, err)
}
