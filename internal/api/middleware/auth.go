// auth.go — JWT middleware аутентификации Service Desk.
// Проверяет подпись токена через JWKS Identity Provider, определяет тип субъекта
// (пользователь / Service Account), вычисляет роль из групп IdP и role override из БД
// и помещает model.Actor в контекст запроса.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/servicedesk/internal/api/errors"
	"github.com/bigkaa/servicedesk/internal/domain/model"
	"github.com/bigkaa/servicedesk/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyActor — субъект запроса в контексте.
	ContextKeyActor contextKey = "actor"
)

// RoleOverrideProvider — источник локальных дополнений роли.
type RoleOverrideProvider interface {
	// GetRoleOverride возвращает дополнительную роль пользователя.
	// Если override не найден — nil, nil.
	GetRoleOverride(ctx context.Context, userID string) (*string, error)
}

// idpClaims — raw claims из JWT Identity Provider.
type idpClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	// RealmAccess — вложенная структура realm_access.roles (Keycloak)
	RealmAccess *realmAccess `json:"realm_access,omitempty"`
	Groups      []string     `json:"groups,omitempty"`
	// Scope — scopes через пробел (Service Account)
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks         keyfunc.Keyfunc
	logger       *slog.Logger
	roleProvider RoleOverrideProvider
	adminGroups  []string
	issuer       string
	jwtLeeway    time.Duration
	// trustProxy — адрес клиента берётся из X-Forwarded-For
	trustProxy bool
}

// JWTAuthParams — параметры JWTAuth.
type JWTAuthParams struct {
	JWKSURL string
	// CACertPath — опциональный CA-сертификат для TLS к IdP
	CACertPath      string
	Issuer          string
	AdminGroups     []string
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	Leeway          time.Duration
	// TrustProxyHeaders — учитывать X-Forwarded-For; включать только
	// когда сервис доступен исключительно через API Gateway
	TrustProxyHeaders bool
}

// NewJWTAuth создаёт JWT middleware с JWKS из Identity Provider.
// roleProvider может быть nil — тогда роль определяется только по токену.
func NewJWTAuth(p JWTAuthParams, roleProvider RoleOverrideProvider, logger *slog.Logger) (*JWTAuth, error) {
	httpClient := &http.Client{Timeout: p.ClientTimeout}
	if p.CACertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(p.CACertPath, p.ClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", p.CACertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", p.CACertPath),
		)
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(p.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           p.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", p.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	auth := NewJWTAuthWithKeyfunc(k, p.Issuer, roleProvider, p.AdminGroups, logger)
	auth.jwtLeeway = p.Leeway
	auth.trustProxy = p.TrustProxyHeaders
	return auth, nil
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки JWKS.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	roleProvider RoleOverrideProvider,
	adminGroups []string,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:         kf,
		logger:       logger.With(slog.String("component", "jwt_auth")),
		roleProvider: roleProvider,
		adminGroups:  adminGroups,
		issuer:       issuer,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}
			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			raw := &idpClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				if err != nil {
					j.logger.Debug("JWT валидация не пройдена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
				}
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if raw.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			actor := j.buildActor(r.Context(), raw)
			actor.Client = clientContext(r, j.trustProxy)

			ctx := WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildActor формирует субъекта из claims.
// Service Account распознаётся по client_id и scope.
func (j *JWTAuth) buildActor(ctx context.Context, raw *idpClaims) *model.Actor {
	actor := &model.Actor{
		ID:       raw.Subject,
		Username: raw.PreferredUsername,
	}

	if raw.ClientID != "" && raw.Scope != "" {
		actor.ServiceAccount = true
		actor.Scopes = strings.Fields(raw.Scope)
		if actor.Username == "" {
			actor.Username = raw.ClientID
		}
		return actor
	}

	idpRole := rbac.MapGroupsToRole(raw.Groups, j.adminGroups)
	if raw.RealmAccess != nil {
		for _, role := range raw.RealmAccess.Roles {
			if role == rbac.RoleAdmin {
				idpRole = rbac.RoleAdmin
			}
		}
	}

	var override *string
	if j.roleProvider != nil {
		var err error
		override, err = j.roleProvider.GetRoleOverride(ctx, actor.ID)
		if err != nil {
			j.logger.Warn("Ошибка получения role override",
				slog.String("user_id", actor.ID),
				slog.String("error", err.Error()),
			)
			override = nil
		}
	}
	actor.Role = rbac.EffectiveRole(idpRole, override)
	return actor
}

// clientContext извлекает адрес и User-Agent клиента для журнала аудита.
// X-Forwarded-For учитывается только при trustProxy: иначе клиент
// подставил бы в журнал произвольный адрес.
func clientContext(r *http.Request, trustProxy bool) model.ClientContext {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			ip := strings.TrimSpace(strings.Split(fwd, ",")[0])
			return model.ClientContext{IP: ip, UserAgent: r.UserAgent()}
		}
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return model.ClientContext{IP: ip, UserAgent: r.UserAgent()}
}

// RequireUser пропускает только пользователей (не Service Account).
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				apierrors.Unauthorized(w, "Отсутствует субъект в контексте")
				return
			}
			if actor.ServiceAccount {
				apierrors.Forbidden(w, "Доступ разрешён только для пользователей")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ActorFromContext извлекает субъекта из контекста запроса.
// Возвращает nil, если субъект не найден.
func ActorFromContext(ctx context.Context) *model.Actor {
	actor, _ := ctx.Value(ContextKeyActor).(*model.Actor)
	return actor
}

// WithActor помещает субъекта в контекст и отмечает его в журнале запроса.
func WithActor(ctx context.Context, actor *model.Actor) context.Context {
	traceActor(ctx, actor)
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// --- ReadinessChecker для Identity Provider ---

// IdPReadinessChecker — проверка доступности IdP через JWKS.
type IdPReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewIdPReadinessChecker создаёт checker доступности IdP.
func NewIdPReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*IdPReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}
	return &IdPReadinessChecker{jwksURL: jwksURL, client: client}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint.
func (k *IdPReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
