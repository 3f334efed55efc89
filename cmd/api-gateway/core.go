package main

import (
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-admin-api/internal/identity"
	"github.com/noah-isme/institute-admin-api/internal/repository"
	"github.com/noah-isme/institute-admin-api/internal/service"
	"github.com/noah-isme/institute-admin-api/pkg/config"
	"github.com/noah-isme/institute-admin-api/pkg/database"
)

// core holds the wired domain services. Transports embed it and call the services with
// the principal resolved by identity.
type core struct {
	db         *sqlx.DB
	metrics    *service.MetricsService
	identity   *identity.Provider
	batches    *service.BatchService
	students   *service.StudentService
	leads      *service.LeadService
	placements *service.PlacementService
	employees  *service.EmployeeService
	courses    *service.CourseService
	companies  *service.CompanyService
}

func newCore(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *core {
	validate := validator.New()
	metrics := service.NewMetricsService()
	tx := database.NewTransactor(db)

	batchRepo := repository.NewBatchRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	placementRepo := repository.NewPlacementRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	companyRepo := repository.NewCompanyRepository(db)

	principalCache := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metrics,
		cfg.Principals.TTL,
		logr.Named("cache"),
		cfg.Principals.Enabled && redisClient != nil,
	)

	batches := service.NewBatchService(batchRepo, courseRepo, employeeRepo, metrics, validate, logr.Named("batch"))
	students := service.NewStudentService(studentRepo, leadRepo, batches, tx, cfg.Enrollment, metrics, validate, logr.Named("student"))

	return &core{
		db:         db,
		metrics:    metrics,
		identity:   identity.NewProvider(cfg.JWT, employeeRepo, principalCache, cfg.Principals.TTL, logr.Named("identity")),
		batches:    batches,
		students:   students,
		leads:      service.NewLeadService(leadRepo, employeeRepo, students, tx, metrics, validate, logr.Named("lead")),
		placements: service.NewPlacementService(placementRepo, studentRepo, companyRepo, metrics, validate, logr.Named("placement")),
		employees:  service.NewEmployeeService(employeeRepo, principalCache, metrics, validate, logr.Named("employee")),
		courses:    service.NewCourseService(courseRepo, metrics, validate, logr.Named("course")),
		companies:  service.NewCompanyService(companyRepo, metrics, validate, logr.Named("company")),
	}
}
