package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"ordena/internal"
	"ordena/internal/config"
	"ordena/internal/storage"
)

// ProcessingService runs one email through detection, the rule parser
// and, when the rules come up empty, the AI fallback. It records
// per-email bookkeeping but never merges: merging is the aggregator's
// job, after review.
type ProcessingService struct {
	db       *storage.DB
	cfg      config.Config
	policy   config.Policy
	rule     Parser
	fallback Parser
}

// NewProcessingService wires the two parser strategies. fallback may be
// nil when no API key is configured; escalation then reports failure.
func NewProcessingService(db *storage.DB, cfg config.Config, policy config.Policy, fallback Parser) *ProcessingService {
	return &ProcessingService{
		db:       db,
		cfg:      cfg,
		policy:   policy,
		rule:     NewRuleParser(cfg, policy),
		fallback: fallback,
	}
}

// ProcessFile parses one raw .eml file for a client.
func (s *ProcessingService) ProcessFile(ctx context.Context, path, clientID string) (internal.ParsedOrder, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return internal.ParsedOrder{}, eris.Wrapf(err, "pipeline: read %s", path)
	}
	return s.ProcessRaw(ctx, raw, clientID)
}

// ProcessRaw parses one raw RFC822 message. Zero branches with a
// matched line is not an error from the rule path; it is the signal to
// escalate to the fallback parser.
func (s *ProcessingService) ProcessRaw(ctx context.Context, raw []byte, clientID string) (internal.ParsedOrder, error) {
	start := time.Now()

	mail, err := ReadRawEmail(raw)
	if err != nil {
		return internal.ParsedOrder{}, eris.Wrap(err, "pipeline: decode email")
	}

	emailID := mail.MessageID
	if emailID == "" {
		sum := sha256.Sum256(raw)
		emailID = hex.EncodeToString(sum[:8])
	}
	log := zap.L().With(zap.String("email_id", emailID), zap.String("client_id", clientID))

	if err := s.db.UpsertEmail(emailID, mail.Subject, mail.From, "received"); err != nil {
		return internal.ParsedOrder{}, eris.Wrap(err, "pipeline: record email")
	}

	input, err := s.buildInput(emailID, clientID, mail)
	if err != nil {
		return internal.ParsedOrder{}, err
	}

	attNames := make([]string, 0, len(mail.Attachments))
	for _, a := range mail.Attachments {
		attNames = append(attNames, a.FileName)
	}
	detect := DetectOrderShape(mail.Subject, mail.Text, mail.HTML, attNames)
	if !detect.IsOrder {
		log.Info("email skipped, not an order", zap.Float64("score", detect.Score))
		_ = s.db.UpdateEmailStatus(emailID, "skipped")
		s.recordRun(emailID, start, internal.ParsedOrder{})
		return internal.ParsedOrder{SourceEmailID: emailID, GeneralNotes: "not recognized as a purchase order"}, nil
	}

	parsed, err := s.rule.Parse(ctx, input)
	if err != nil {
		_ = s.db.UpdateEmailStatus(emailID, "failed")
		return internal.ParsedOrder{}, err
	}

	if MatchedLineCount(parsed.Branches) == 0 {
		log.Info("rule parser found nothing, escalating to fallback")
		if s.fallback == nil {
			_ = s.db.UpdateEmailStatus(emailID, "failed")
			s.recordRun(emailID, start, parsed)
			return parsed, eris.New("pipeline: rule parser yielded no matches and no fallback is configured")
		}
		parsed, err = s.fallback.Parse(ctx, input)
		if err != nil {
			_ = s.db.UpdateEmailStatus(emailID, "failed")
			return internal.ParsedOrder{}, err
		}
	}

	if err := s.db.UpdateEmailStatus(emailID, "processed"); err != nil {
		return internal.ParsedOrder{}, eris.Wrap(err, "pipeline: update email status")
	}
	s.recordRun(emailID, start, parsed)

	log.Info("email processed",
		zap.Int("branches", len(parsed.Branches)),
		zap.Int("matched_lines", MatchedLineCount(parsed.Branches)),
		zap.Float64("confidence", parsed.Confidence),
		zap.Duration("took", time.Since(start)),
	)
	return parsed, nil
}

func (s *ProcessingService) buildInput(emailID, clientID string, mail RawEmail) (internal.EmailInput, error) {
	products, err := s.db.ListProducts()
	if err != nil {
		return internal.EmailInput{}, eris.Wrap(err, "pipeline: load catalog")
	}
	branches, err := s.db.ListBranches()
	if err != nil {
		return internal.EmailInput{}, eris.Wrap(err, "pipeline: load branches")
	}

	return internal.EmailInput{
		EmailID:      emailID,
		EmailBody:    mail.Text,
		EmailHTML:    mail.HTML,
		EmailSubject: mail.Subject,
		EmailFrom:    mail.From,
		ClientID:     clientID,
		Catalog:      products,
		Branches:     branches,
		Attachments:  mail.Attachments,
	}, nil
}

func (s *ProcessingService) recordRun(emailID string, start time.Time, parsed internal.ParsedOrder) {
	lines := 0
	for _, b := range parsed.Branches {
		lines += len(b.Lines)
	}
	counts := map[string]int{
		"branches": len(parsed.Branches),
		"lines":    lines,
		"matched":  MatchedLineCount(parsed.Branches),
	}
	timings := map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}
	if err := s.db.InsertRun(traceID(), emailID, timings, counts); err != nil {
		zap.L().Warn("failed to record run", zap.String("email_id", emailID), zap.Error(err))
	}
}

func traceID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}
