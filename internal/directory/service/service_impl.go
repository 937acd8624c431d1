package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/palcoscenico/agibilita/internal/directory/domain"
	"github.com/palcoscenico/agibilita/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	venues     repository.Repository[directorydomain.Venue]
	clients    repository.Repository[directorydomain.Client]
	performers repository.Repository[directorydomain.Performer]
}

func NewService(p ServiceParam) directorydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("directory.service"),

		venues:     repository.ProvideStore[directorydomain.Venue](p.DB),
		clients:    repository.ProvideStore[directorydomain.Client](p.DB),
		performers: repository.ProvideStore[directorydomain.Performer](p.DB),
	}
}

func (s *Service) GetVenue(ctx context.Context, id snowflake.ID) (*directorydomain.Venue, error) {
	venue, err := s.venues.FindOne(ctx, &directorydomain.Venue{ID: id})
	if err != nil {
		return nil, err
	}
	if venue == nil {
		return nil, directorydomain.ErrVenueNotFound
	}
	return venue, nil
}

func (s *Service) GetClient(ctx context.Context, id snowflake.ID) (*directorydomain.Client, error) {
	client, err := s.clients.FindOne(ctx, &directorydomain.Client{ID: id})
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, directorydomain.ErrClientNotFound
	}
	return client, nil
}

func (s *Service) GetPerformers(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]directorydomain.Performer, error) {
	performers := make(map[snowflake.ID]directorydomain.Performer, len(ids))
	if len(ids) == 0 {
		return performers, nil
	}

	var rows []directorydomain.Performer
	if err := s.db.WithContext(ctx).Where("id IN (?)", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		performers[row.ID] = row
	}

	for _, id := range ids {
		if _, ok := performers[id]; !ok {
			return nil, directorydomain.ErrPerformerNotFound
		}
	}
	return performers, nil
}

func (s *Service) LegalRepresentativePredicate(ctx context.Context, clientID *snowflake.ID) func(string) bool {
	none := func(string) bool { return false }
	if clientID == nil {
		return none
	}

	client, err := s.clients.FindOne(ctx, &directorydomain.Client{ID: *clientID})
	if err != nil || client == nil {
		return none
	}
	repCode := strings.ToUpper(strings.TrimSpace(client.LegalRepFiscalCode))
	if repCode == "" {
		return none
	}
	return func(fiscalCode string) bool {
		return strings.ToUpper(strings.TrimSpace(fiscalCode)) == repCode
	}
}

func (s *Service) BackfillEnrollment(ctx context.Context, fiscalCode, enrollmentNumber string) error {
	fiscalCode = strings.ToUpper(strings.TrimSpace(fiscalCode))
	enrollmentNumber = strings.TrimSpace(enrollmentNumber)
	if fiscalCode == "" || enrollmentNumber == "" {
		return nil
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE performers
		 SET inps_enrollment_number = ?
		 WHERE UPPER(fiscal_code) = ? AND (inps_enrollment_number IS NULL OR inps_enrollment_number = '')`,
		enrollmentNumber,
		fiscalCode,
	).Error
}
