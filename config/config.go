package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/ysicing/ProfileBgAPI/pkg/dropbox"
)

// 远程存储提供者
const (
	ProviderDropbox = "dropbox"
	ProviderObject  = "object"
)

// Config 应用程序配置
type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
		Host string `mapstructure:"host"`
	} `mapstructure:"server"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	App struct {
		// Name 远程存储命名空间 /apps/<name>/
		Name string `mapstructure:"name"`
	} `mapstructure:"app"`

	Storage struct {
		// 本地回退存储配置
		Local struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"local"`

		Remote struct {
			Provider        string        `mapstructure:"provider"`
			Timeout         time.Duration `mapstructure:"timeout"`
			ProxyReferences bool          `mapstructure:"proxyReferences"`
		} `mapstructure:"remote"`

		// 对象存储配置，provider 为 object 时使用
		Object struct {
			Endpoint        string `mapstructure:"endpoint"`
			AccessKeyID     string `mapstructure:"accessKeyID"`
			SecretAccessKey string `mapstructure:"secretAccessKey"`
			BucketName      string `mapstructure:"bucketName"`
			Region          string `mapstructure:"region"`
			UseSSL          bool   `mapstructure:"useSSL"`
			BaseURL         string `mapstructure:"baseURL"`
		} `mapstructure:"object"`
	} `mapstructure:"storage"`

	Schedule struct {
		// ConnectionCheck 连接检查的 cron 表达式，为空时不检查
		ConnectionCheck string `mapstructure:"connectionCheck"`
	} `mapstructure:"schedule"`

	API struct {
		RateLimit       int           `mapstructure:"rateLimit"`
		RateLimitWindow time.Duration `mapstructure:"rateLimitWindow"`
	} `mapstructure:"api"`

	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
}

var (
	// AppConfig 全局配置
	AppConfig Config

	// EnvFile 启动时加载的环境变量文件
	EnvFile = ".env"
)

// credentialKeys 凭证环境变量对应的配置键
var credentialKeys = map[string]string{
	dropbox.EnvAccessToken:  "dropbox.accessToken",
	dropbox.EnvRefreshToken: "dropbox.refreshToken",
	dropbox.EnvAppKey:       "dropbox.appKey",
	dropbox.EnvAppSecret:    "dropbox.appSecret",
}

// envBindings 不带前缀的环境变量
var envBindings = map[string]string{
	"app.name":       "APP_NAME",
	"database.url":   "DATABASE_URL",
	"auth.jwtSecret": "JWT_SECRET",
}

const envPrefix = "PROFILEBG"

// LoadConfig 加载配置文件
func LoadConfig() error {
	if err := loadEnvFile(EnvFile); err != nil {
		return err
	}

	cfg, err := load(viper.GetViper(), "./config")
	if err != nil {
		return err
	}
	AppConfig = *cfg
	return nil
}

// loadEnvFile 加载 .env，文件不存在不算错误，已存在的环境变量优先
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("加载 %s 失败: %w", path, err)
	}
	logrus.Infof("已加载环境变量文件: %s", path)
	return nil
}

// prefixedEnv 返回配置键默认对应的带前缀环境变量名
func prefixedEnv(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("log.level", "debug")
	v.SetDefault("app.name", "next-profile-bg")

	// 本地存储默认配置
	v.SetDefault("storage.local.path", "./public")

	// 远程存储默认配置
	v.SetDefault("storage.remote.provider", ProviderDropbox)
	v.SetDefault("storage.remote.timeout", "20s")
	v.SetDefault("storage.remote.proxyReferences", false)

	// 对象存储默认配置
	v.SetDefault("storage.object.endpoint", "s3.amazonaws.com")
	v.SetDefault("storage.object.region", "us-east-1")
	v.SetDefault("storage.object.useSSL", true)

	v.SetDefault("schedule.connectionCheck", "")

	// 背景更新限流: 每个客户端 10 分钟内 10 次
	v.SetDefault("api.rateLimit", 10)
	v.SetDefault("api.rateLimitWindow", "10m")

	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwtSecret", "")
}

func load(v *viper.Viper, configDir string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	// 设置环境变量前缀
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, prefixedEnv(key), env); err != nil {
			return nil, err
		}
	}
	for env, key := range credentialKeys {
		if err := v.BindEnv(key, prefixedEnv(key), env); err != nil {
			return nil, err
		}
	}

	setDefaults(v)

	// 尝试读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// 如果配置文件不存在，创建默认配置文件
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, err
		}
		// 只写入默认值，环境变量中的凭证不落盘
		defaults := viper.New()
		setDefaults(defaults)
		file := filepath.Join(configDir, "config.yaml")
		if err := defaults.SafeWriteConfigAs(file); err != nil {
			return nil, err
		}
		logrus.Infof("已创建默认配置文件: %s", file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate 验证必要的配置项
func validate(cfg *Config) error {
	switch cfg.Storage.Remote.Provider {
	case ProviderDropbox:
	case ProviderObject:
		obj := cfg.Storage.Object
		if obj.AccessKeyID == "" || obj.SecretAccessKey == "" || obj.BucketName == "" {
			logrus.Warn("警告: 对象存储配置不完整，上传将回退到本地存储")
		}
	default:
		return fmt.Errorf("不支持的远程存储提供者: %q", cfg.Storage.Remote.Provider)
	}

	if cfg.Storage.Remote.Timeout <= 0 {
		return fmt.Errorf("远程存储超时必须大于0")
	}
	if cfg.API.RateLimit <= 0 || cfg.API.RateLimitWindow <= 0 {
		return fmt.Errorf("限流配置无效: %d/%s", cfg.API.RateLimit, cfg.API.RateLimitWindow)
	}
	if cfg.Auth.JWTSecret == "" {
		logrus.Warn("警告: 未配置 JWT_SECRET，需要登录的接口将全部拒绝")
	}
	return nil
}

// Credentials 返回 Dropbox 凭证来源，每次调用都从 viper 读取最新值
func Credentials() dropbox.Source {
	return credentialSource(viper.GetViper())
}

func credentialSource(v *viper.Viper) dropbox.Source {
	return dropbox.SourceFunc(func(name string) string {
		key, ok := credentialKeys[name]
		if !ok {
			return ""
		}
		return v.GetString(key)
	})
}

// JWTSecret 返回当前的会话签名密钥
func JWTSecret() string {
	return viper.GetString("auth.jwtSecret")
}

// WatchConfig 监视配置文件变更
func WatchConfig(callback func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		logrus.Infof("配置文件已修改: %s", e.Name)

		// 解析配置到结构体
		oldConfig := AppConfig
		newConfig := Config{}
		if err := viper.Unmarshal(&newConfig); err != nil {
			logrus.Errorf("解析配置失败: %v", err)
			return
		}

		if err := validate(&newConfig); err != nil {
			logrus.Errorf("配置无效，忽略此次配置更新: %v", err)
			return
		}

		// 更新全局配置
		AppConfig = newConfig

		if callback != nil {
			callback(&newConfig)
		}

		logConfigChanges(&oldConfig, &newConfig)
	})

	// 开始监视配置文件
	viper.WatchConfig()
	logrus.Info("已启动配置文件监视")
}

// logConfigChanges 记录配置更改
func logConfigChanges(old, new *Config) {
	if old.Server.Port != new.Server.Port || old.Server.Host != new.Server.Host {
		logrus.Warnf("服务器地址已更改，需要重启生效: %s:%s -> %s:%s",
			old.Server.Host, old.Server.Port, new.Server.Host, new.Server.Port)
	}

	if old.Log.Level != new.Log.Level {
		logrus.Infof("日志级别已更改: %s -> %s", old.Log.Level, new.Log.Level)
	}

	if old.App.Name != new.App.Name {
		logrus.Infof("应用名称已更改: %s -> %s", old.App.Name, new.App.Name)
	}

	if old.Storage.Remote != new.Storage.Remote {
		logrus.Infof("远程存储配置已更改: provider=%s timeout=%s proxyReferences=%v",
			new.Storage.Remote.Provider, new.Storage.Remote.Timeout, new.Storage.Remote.ProxyReferences)
	}

	if old.Schedule.ConnectionCheck != new.Schedule.ConnectionCheck {
		logrus.Infof("连接检查间隔已更改: %q -> %q", old.Schedule.ConnectionCheck, new.Schedule.ConnectionCheck)
	}

	if old.API != new.API {
		logrus.Infof("限流配置已更改: %d/%s -> %d/%s",
			old.API.RateLimit, old.API.RateLimitWindow, new.API.RateLimit, new.API.RateLimitWindow)
	}

	if old.Database.URL != new.Database.URL {
		logrus.Warn("数据库地址已更改，需要重启生效")
	}
}
