package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/hallpass/internal/model"
	"github.com/Freeeeeet/hallpass/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserService struct {
	userRepo      *repository.UserRepository
	classroomRepo *repository.ClassroomRepository
	logger        *zap.Logger
}

func NewUserService(userRepo *repository.UserRepository, classroomRepo *repository.ClassroomRepository, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo:      userRepo,
		classroomRepo: classroomRepo,
		logger:        logger,
	}
}

// RegisterUser регистрирует или обновляет пользователя
func (s *UserService) RegisterUser(ctx context.Context, telegramID int64, username, firstName, lastName, languageCode string) (*model.User, error) {
	// Проверяем существует ли пользователь
	existingUser, err := s.userRepo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	// Если пользователь уже существует, обновляем данные
	if existingUser != nil {
		existingUser.Username = username
		existingUser.FirstName = firstName
		existingUser.LastName = lastName
		existingUser.LanguageCode = languageCode

		if err := s.userRepo.Update(ctx, existingUser); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}

		return existingUser, nil
	}

	user := &model.User{
		TelegramID:   telegramID,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		LanguageCode: languageCode,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("New user registered",
		zap.Stringer("user_id", user.ID),
		zap.Int64("telegram_id", telegramID),
		zap.String("username", username),
	)

	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByTelegramID(ctx, telegramID)
}

// NamesByID возвращает отображаемые имена пользователей для списков очереди
func (s *UserService) NamesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}

	names := make(map[uuid.UUID]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	return names, nil
}

// Classroom получает класс по ID
func (s *UserService) Classroom(ctx context.Context, id uuid.UUID) (*model.Classroom, error) {
	classroom, err := s.classroomRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if classroom == nil {
		return nil, fmt.Errorf("classroom %s not found", id)
	}
	return classroom, nil
}

// Classrooms классы пользователя: свои для учителя, в которых числится для ученика
func (s *UserService) Classrooms(ctx context.Context, user *model.User) ([]*model.Classroom, error) {
	if user.IsTeacher {
		return s.classroomRepo.ListByTeacher(ctx, user.ID)
	}
	return s.classroomRepo.ListByStudent(ctx, user.ID)
}

// IsEnrolled проверяет, что ученик числится в классе
func (s *UserService) IsEnrolled(ctx context.Context, studentID, classroomID uuid.UUID) (bool, error) {
	return s.classroomRepo.IsEnrolled(ctx, studentID, classroomID)
}

// CanManage может ли пользователь управлять классом: только его учитель
func (s *UserService) CanManage(ctx context.Context, user *model.User, classroomID uuid.UUID) (bool, error) {
	if !user.IsTeacher {
		return false, nil
	}
	classroom, err := s.classroomRepo.GetByID(ctx, classroomID)
	if err != nil {
		return false, err
	}
	return classroom != nil && classroom.TeacherID == user.ID, nil
}
