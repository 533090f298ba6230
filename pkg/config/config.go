package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App       AppConfig
	DB        DBConfig
	JWT       JWTConfig
	HTTP      HTTPConfig
	Redis     RedisConfig
	Certs     CertConfig
	Artifacts ArtifactConfig
	AEAT      AEATConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env   string // development, staging, production
	Name  string
	Store string // postgres | memory
	Log   string // nivel de log
}

// IsDevelopment indica si la app corre en modo desarrollo.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	Migrate     bool // aplicar migraciones embebidas al arrancar
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig conexión para la invalidación de listados cacheados. URL vacía = sin caché.
type RedisConfig struct {
	URL string
}

// CertConfig almacén de certificados del host y certificado de desarrollo.
type CertConfig struct {
	StoreDir      string // directorio con .pem/.crt/.cer/.p12/.pfx
	StorePassword string // contraseña de los .p12
	DevCertPath   string // vacío = se genera un certificado autofirmado al arrancar
	DevKeyPath    string
}

// ArtifactConfig almacén append-only de firmas.
type ArtifactConfig struct {
	Backend        string // fs | dynamodb
	Dir            string
	AWSRegion      string
	DynamoEndpoint string // opcional (DynamoDB local)
	DynamoTable    string
}

// AEATConfig parámetros del envío a la autoridad tributaria (simulado).
type AEATConfig struct {
	SubmitTimeout time.Duration
	MaxRetries    int
	SoftwareName  string
	SoftwareNIF   string
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:   getString(v, "APP_ENV", "development"),
			Name:  getString(v, "APP_NAME", "concesionario-api"),
			Store: getString(v, "STORE", "postgres"),
			Log:   getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "concesionario"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
			Migrate:     getBool(v, "DB_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "concesionario-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Redis: RedisConfig{
			URL: getString(v, "REDIS_URL", ""),
		},
		Certs: CertConfig{
			StoreDir:      getString(v, "CERT_STORE_DIR", "./certs"),
			StorePassword: getString(v, "CERT_STORE_PASSWORD", ""),
			DevCertPath:   getString(v, "DEV_CERT_PATH", ""),
			DevKeyPath:    getString(v, "DEV_KEY_PATH", ""),
		},
		Artifacts: ArtifactConfig{
			Backend:        getString(v, "ARTIFACT_BACKEND", "fs"),
			Dir:            getString(v, "ARTIFACT_DIR", "./data/signatures"),
			AWSRegion:      getString(v, "AWS_REGION", "eu-south-2"),
			DynamoEndpoint: getString(v, "DYNAMODB_ENDPOINT", ""),
			DynamoTable:    getString(v, "DYNAMODB_ARTIFACT_TABLE", "signature_artifacts"),
		},
		AEAT: AEATConfig{
			SubmitTimeout: time.Duration(getInt(v, "AEAT_SUBMIT_TIMEOUT_SECONDS", 15)) * time.Second,
			MaxRetries:    getInt(v, "AEAT_MAX_RETRIES", 3),
			SoftwareName:  getString(v, "AEAT_SOFTWARE_NAME", "Concesionario API"),
			SoftwareNIF:   getString(v, "AEAT_SOFTWARE_NIF", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.App.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: STORE debe ser postgres o memory, recibido %q", c.App.Store)
	}
	switch c.Artifacts.Backend {
	case "fs", "dynamodb":
	default:
		return fmt.Errorf("config: ARTIFACT_BACKEND debe ser fs o dynamodb, recibido %q", c.Artifacts.Backend)
	}
	if c.AEAT.MaxRetries < 0 {
		return fmt.Errorf("config: AEAT_MAX_RETRIES no puede ser negativo")
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return def
		}
		return b
	}
	return def
}
