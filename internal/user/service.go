// Package user はユーザー管理のドメインロジックを提供する。
// 登録、ログイン、ログアウト、プロフィール更新、退会、アバター管理を扱う。
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/taskman/internal/avatar"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

const (
	// minPasswordLength はパスワードの最小文字数（前後の空白除去後）。
	minPasswordLength = 7
	// maxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
	maxPasswordBytes = 72
	// forbiddenPasswordWord はパスワードに含めてはならない語（大文字小文字を区別しない）。
	forbiddenPasswordWord = "password"
)

// updatableFields はPATCH /users/meで変更可能なフィールド。
var updatableFields = model.NewAllowList("name", "email", "password", "age")

// TokenIssuer はセッショントークンの発行インターフェース。
type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

// AvatarProcessor はアバター画像の正規化インターフェース。
type AvatarProcessor interface {
	Process(data []byte) ([]byte, error)
}

// TokenMetrics はトークン発行・失効の計測インターフェース。
type TokenMetrics interface {
	RecordTokenIssued()
	RecordTokensRevoked(count int)
}

// Config はユーザーサービスの設定値。
type Config struct {
	BcryptCost     int
	AvatarMaxBytes int64
}

// RegisterInput はユーザー登録の入力値。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Age      int
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo       repository.UserRepository
	tokenRepo      repository.TokenRepository
	issuer         TokenIssuer
	avatars        AvatarProcessor
	metrics        TokenMetrics
	bcryptCost     int
	avatarMaxBytes int64
	now            func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// BcryptCostが範囲外の場合はbcrypt.DefaultCost、AvatarMaxBytesが0以下の場合は
// avatar.DefaultMaxBytesを使う。
func NewService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	issuer TokenIssuer,
	avatars AvatarProcessor,
	cfg Config,
) *Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	maxBytes := cfg.AvatarMaxBytes
	if maxBytes <= 0 {
		maxBytes = avatar.DefaultMaxBytes
	}
	return &Service{
		userRepo:       userRepo,
		tokenRepo:      tokenRepo,
		issuer:         issuer,
		avatars:        avatars,
		bcryptCost:     cost,
		avatarMaxBytes: maxBytes,
		now:            time.Now,
	}
}

// SetMetrics はトークン計測用のコレクターを設定する。nilの場合は計測しない。
func (s *Service) SetMetrics(m TokenMetrics) {
	s.metrics = m
}

// Register はユーザーを登録し、最初のセッショントークンを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, string, error) {
	name := normalizeName(in.Name)
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, "", err
	}
	password, err := normalizePassword(in.Password)
	if err != nil {
		return nil, "", err
	}
	if err := validateAge(in.Age); err != nil {
		return nil, "", err
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Password:  hash,
		Age:       in.Age,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, "", model.NewEmailTakenError()
		}
		return nil, "", fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	token, err := s.issueToken(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
	)

	return user, token, nil
}

// Login はメールアドレスとパスワードで認証し、新しいセッショントークンを発行する。
// ユーザー不在とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, "", model.NewLoginFailedError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, "", model.NewLoginFailedError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", model.NewLoginFailedError()
	}

	token, err := s.issueToken(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Logout は提示されたトークンのみを有効トークン一覧から削除する。
// 同じユーザーの他のトークンは引き続き有効。
func (s *Service) Logout(ctx context.Context, userID, token string) error {
	if err := s.tokenRepo.DeleteByToken(ctx, userID, token); err != nil {
		return fmt.Errorf("トークンの削除に失敗しました: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordTokensRevoked(1)
	}
	return nil
}

// LogoutAll はユーザーの全トークンを有効トークン一覧から削除する。
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	count, err := s.tokenRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("トークンの一括削除に失敗しました: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordTokensRevoked(int(count))
	}

	slog.Info("全セッションからログアウトしました",
		slog.String("user_id", userID),
		slog.Int64("revoked", count),
	)
	return nil
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// Get は指定ユーザーを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Update はユーザーのプロフィールを部分更新する。
// 許可リスト外のフィールドが一つでもあれば、何も変更せずにエラーを返す。
func (s *Service) Update(ctx context.Context, userID string, fields model.UpdateFields) (*model.User, error) {
	// 1. 許可リストの検証（DBアクセス前）
	if err := updatableFields.Check(fields); err != nil {
		return nil, err
	}

	// 2. 現在の値を取得
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 3. 各フィールドを検証して適用
	for name, raw := range fields {
		if err := s.applyField(user, name, raw); err != nil {
			return nil, err
		}
	}

	// 4. 保存
	user.UpdatedAt = s.now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, model.NewEmailTakenError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	return user, nil
}

// applyField は1つのフィールドの値をデコード・検証してユーザーに反映する。
func (s *Service) applyField(user *model.User, name string, raw json.RawMessage) error {
	switch name {
	case "name":
		var v string
		if model.IsNull(raw) || json.Unmarshal(raw, &v) != nil {
			return model.NewValidationError("name", "must be a string")
		}
		user.Name = normalizeName(v)
	case "email":
		var v string
		if model.IsNull(raw) || json.Unmarshal(raw, &v) != nil {
			return model.NewValidationError("email", "must be a string")
		}
		normalized, err := normalizeEmail(v)
		if err != nil {
			return err
		}
		user.Email = normalized
	case "password":
		var v string
		if model.IsNull(raw) || json.Unmarshal(raw, &v) != nil {
			return model.NewValidationError("password", "must be a string")
		}
		normalized, err := normalizePassword(v)
		if err != nil {
			return err
		}
		hash, err := s.hashPassword(normalized)
		if err != nil {
			return err
		}
		user.Password = hash
	case "age":
		var v int
		if model.IsNull(raw) || json.Unmarshal(raw, &v) != nil {
			return model.NewValidationError("age", "must be an integer")
		}
		if err := validateAge(v); err != nil {
			return err
		}
		user.Age = v
	}
	return nil
}

// Delete はユーザーを削除し、削除したユーザーを返す。
// タスクと有効トークンはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーを削除しました",
		slog.String("user_id", userID),
	)
	return user, nil
}

// UploadAvatar はアップロード画像を検証・正規化してユーザーに保存する。
// サイズと拡張子の検証は画像処理と保存より前に行う。
func (s *Service) UploadAvatar(ctx context.Context, userID, filename string, data []byte) error {
	if err := avatar.ValidateUpload(filename, int64(len(data)), s.avatarMaxBytes); err != nil {
		return err
	}

	normalized, err := s.avatars.Process(data)
	if err != nil {
		if errors.Is(err, avatar.ErrUnsupportedImage) {
			return model.NewInvalidAvatarError()
		}
		return fmt.Errorf("アバター画像の変換に失敗しました: %w", err)
	}

	if err := s.userRepo.UpdateAvatar(ctx, userID, normalized); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("アバター画像の保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteAvatar はアバター画像を削除し、保存完了後のユーザーを返す。
func (s *Service) DeleteAvatar(ctx context.Context, userID string) (*model.User, error) {
	if err := s.userRepo.UpdateAvatar(ctx, userID, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("アバター画像の削除に失敗しました: %w", err)
	}
	return s.Get(ctx, userID)
}

// GetAvatar は指定ユーザーのアバター画像（PNG）を返す。
// ID形式が不正、ユーザー不在、未登録のいずれもAvatarNotFoundとする。
func (s *Service) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, model.NewAvatarNotFoundError()
	}

	data, err := s.userRepo.FindAvatar(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アバター画像の取得に失敗しました: %w", err)
	}
	if len(data) == 0 {
		return nil, model.NewAvatarNotFoundError()
	}
	return data, nil
}

// issueToken はトークンを発行して有効トークン一覧に追加する。
func (s *Service) issueToken(ctx context.Context, userID string) (string, error) {
	token, expiresAt, err := s.issuer.Issue(userID)
	if err != nil {
		return "", fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}

	if err := s.tokenRepo.Create(ctx, &model.Token{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}); err != nil {
		return "", fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTokenIssued()
	}
	return token, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	return string(hash), nil
}

// --- 入力値の正規化と検証 ---

// normalizeName は表示名の前後の空白を除去する。表示名は任意項目で空文字を許す。
func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

// normalizeEmail は前後の空白を除去して小文字化し、アドレス形式を検証する。
// 表示名付きの形式（"Name <a@example.com>"）は受け付けない。
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", model.NewValidationError("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("email", "is invalid")
	}
	return email, nil
}

func normalizePassword(password string) (string, error) {
	password = strings.TrimSpace(password)
	if len([]rune(password)) < minPasswordLength {
		return "", model.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return "", model.NewValidationError("password", fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	if strings.Contains(strings.ToLower(password), forbiddenPasswordWord) {
		return "", model.NewValidationError("password", `cannot contain "password"`)
	}
	return password, nil
}

func validateAge(age int) error {
	if age < 0 {
		return model.NewValidationError("age", "must be a positive number")
	}
	return nil
}
