// services/scheduler.go
package services

import (
	"errors"
	"log"
	"time"

	"auction-admin-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartSettlementScheduler runs two periodic jobs: auto-settle running
// tournaments whose auctions are all final, and recover tournaments left
// in settling by a crashed run. Manual triggers racing these jobs are
// harmless — the guard's compare-and-set lets only one through.
func (s *SettlementService) StartSettlementScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var tournaments []models.Tournament
			err := s.DB.Where("status = ?", models.TournamentStatusRunning).
				Find(&tournaments).Error
			if err != nil {
				log.Printf("[SCHED] DB error: %v", err)
				return
			}

			for _, t := range tournaments {
				// Cheap finality probe before running the full pipeline.
				var pending int64
				err := s.DB.Model(&models.Auction{}).
					Where("id IN (?) AND is_final = false",
						s.DB.Model(&models.TournamentAuction{}).
							Select("auction_id").
							Where("tournament_id = ?", t.ID)).
					Count(&pending).Error
				if err != nil {
					log.Printf("[SCHED] finality probe failed for %s: %v", t.ID, err)
					continue
				}
				if pending > 0 {
					continue
				}

				result, err := s.SettleTournament(t.ID)
				if err != nil {
					if errors.Is(err, ErrOutcomesPending) {
						continue // finalized between probe and run? just wait
					}
					log.Printf("[SCHED] failed to settle tournament %s: %v", t.ID, err)
					continue
				}
				if !result.AlreadySettled {
					log.Printf("✅ Auto-settled tournament: %s", t.Name)
				}
			}
		}),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			if err := s.RecoverStuckSettlements(10 * time.Minute); err != nil {
				log.Printf("[SCHED] stuck settlement recovery failed: %v", err)
			}
		}),
	)
}
