// This file is a helper for running tests with testcontainers.
// It is used by the integration tests in tests/integration in a standalone
// executable and by other test files in the test helpers package.
// Expects environment variables to be loaded from .env files.

package helpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContainers is the full Postgres+Authorizer+featherdb stack a single
// integration test run needs. SPEC_FULL.md §9's resolved database target
// is Postgres-only for catalog/events, so this repo's testcontainers no
// longer stand up a MariaDB alternative the way the teacher's did.
type TestContainers struct {
	Network             *testcontainers.DockerNetwork
	DBContainer         testcontainers.Container
	AuthorizerContainer testcontainers.Container
	AppContainer        testcontainers.Container
	AppBuilderContainer testcontainers.Container

	// AuthzURL and BaseURL are the host-reachable (mapped port) addresses
	// of the Authorizer and featherdb containers. The app container talks
	// to Authorizer over the Docker network by container name, which the
	// test process on the host can't resolve, so these are captured
	// separately once each container reports its mapped port.
	AuthzURL string
	BaseURL  string
}

func (tc *TestContainers) Terminate(t *testing.T) {
	ctx := context.Background()
	if tc.AppContainer != nil {
		if err := tc.AppContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate featherdb: %v", err)
		}
	}
	if tc.AppBuilderContainer != nil {
		if err := tc.AppBuilderContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate featherdb builder: %v", err)
		}
	}
	if tc.AuthorizerContainer != nil {
		if err := tc.AuthorizerContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Authorizer: %v", err)
		}
	}
	if tc.DBContainer != nil {
		if err := tc.DBContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Postgres: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logMessage(t, "Failed to remove network: %v", err)
		}
	}
}

func CreateAllTestContainers(t *testing.T) (*TestContainers, error) {
	ctx := context.Background()
	testContainers := &TestContainers{}

	debugContainer := os.Getenv("DEBUG_CONTAINER")

	nw, err := network.New(ctx)
	if err != nil {
		exitWithError(t, err, "Failed to create network")
	}
	testContainers.Network = nw
	networkName := nw.Name

	dbNetworkName := os.Getenv("DB_HOST")
	tcpDbPort, err := nat.NewPort("tcp", os.Getenv("DB_PORT"))
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to create DB port")
	}
	dbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        os.Getenv("DB_IMAGE"),
			ExposedPorts: []string{string(tcpDbPort)},
			Env: map[string]string{
				"POSTGRES_PASSWORD": os.Getenv("DB_SUPER_PASSWORD"),
				"POSTGRES_USER":     os.Getenv("DB_SUPER_USER"),
				"POSTGRES_DB":       os.Getenv("DB_DATABASE"),
			},
			WaitingFor: wait.ForListeningPort(tcpDbPort).WithStartupTimeout(60 * time.Second),
			Networks:   []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {dbNetworkName},
			},
		},
		Started: true,
	})
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to start Postgres")
	}
	testContainers.DBContainer = dbContainer

	dbHost, _ := dbContainer.Host(ctx)
	dbPort, _ := dbContainer.MappedPort(ctx, tcpDbPort)
	if err := performPostgresDBInit(t, testContainers, dbHost, dbPort); err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to initialize database")
	}

	authzNetworkName := "authorizer"
	tcpAuthzPort, err := nat.NewPort("tcp", os.Getenv("AUTHZ_PORT"))
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to create Authorizer port")
	}
	authzDbConnection := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_SUPER_USER"), os.Getenv("DB_SUPER_PASSWORD"), dbNetworkName, os.Getenv("DB_PORT"), os.Getenv("AUTHZ_DATABASE"))
	authzLogLevel := "info"
	if debugContainer == "true" {
		authzLogLevel = "debug"
	}
	authorizerContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        os.Getenv("AUTHZ_IMAGE"),
			ExposedPorts: []string{string(tcpAuthzPort)},
			Env: map[string]string{
				"ENV":           "production",
				"CLIENT_ID":     os.Getenv("AUTHZ_CLIENT_ID"),
				"PORT":          os.Getenv("AUTHZ_PORT"),
				"DATABASE_TYPE": "postgres",
				"DATABASE_NAME": os.Getenv("AUTHZ_DATABASE"),
				"DATABASE_URL":  authzDbConnection,
				"ADMIN_SECRET":  os.Getenv("AUTHZ_ADMIN_SECRET"),
				"ROLES":         "superuser,user",
				"DEFAULT_ROLES": "user",
				"LOG_LEVEL":     authzLogLevel,
			},
			WaitingFor: wait.ForLog("Authorizer running at PORT:").WithStartupTimeout(10 * time.Second),
			Networks:   []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {authzNetworkName},
			},
		},
		Started: true,
	})
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to start Authorizer")
	}
	testContainers.AuthorizerContainer = authorizerContainer

	authzHost, _ := authorizerContainer.Host(ctx)
	authzPort, _ := authorizerContainer.MappedPort(ctx, tcpAuthzPort)
	testContainers.AuthzURL = fmt.Sprintf("http://%s:%s", authzHost, authzPort.Port())
	logMessage(t, "AUTHZ_URL=%s", testContainers.AuthzURL)

	imageName := "featherdb-test:latest"

	imgExists, err := imageExists(ctx, imageName)
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to check if image exists")
	}

	appPortNumber := os.Getenv("PORT")
	tcpAppPort, err := nat.NewPort("tcp", appPortNumber)
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to create app port")
	}

	appExposedPorts := []string{string(tcpAppPort)}
	if debugContainer == "true" {
		appExposedPorts = append(appExposedPorts, "2345/tcp")
	}

	hostConfigModifier := func(hostConfig *container.HostConfig) {
		if debugContainer == "true" {
			hostConfig.PortBindings = nat.PortMap{
				"2345/tcp": []nat.PortBinding{
					{HostIP: "127.0.0.1", HostPort: "2345"},
				},
			}
			hostConfig.CapAdd = []string{"SYS_PTRACE"}
			hostConfig.SecurityOpt = []string{"apparmor:unconfined"}
		}
	}

	var waitStrategy wait.Strategy
	waitStrategy = wait.ForHTTP("/metrics").WithPort(tcpAppPort).WithStartupTimeout(30 * time.Second)
	if debugContainer == "true" {
		waitStrategy = wait.ForLog("API server listening at: [::]:2345").WithStartupTimeout(5 * time.Minute)
	}

	appContainerRequest := testcontainers.ContainerRequest{
		ExposedPorts: appExposedPorts,
		Env: map[string]string{
			"DB_TYPE":                   "postgres",
			"DB_HOST":                   dbNetworkName,
			"DB_PORT":                   os.Getenv("DB_PORT"),
			"DB_DATABASE":               os.Getenv("DB_DATABASE"),
			"DB_SUPER_USER":             os.Getenv("DB_SUPER_USER"),
			"DB_SUPER_PASSWORD":         os.Getenv("DB_SUPER_PASSWORD"),
			"DB_USER":                   os.Getenv("DB_USER"),
			"DB_PASSWORD":               os.Getenv("DB_PASSWORD"),
			"DB_SUPER_CONNECTION_LIMIT": os.Getenv("DB_SUPER_CONNECTION_LIMIT"),
			"DB_CONNECTION_LIMIT":       os.Getenv("DB_CONNECTION_LIMIT"),
			"AUTHZ_URL":                 fmt.Sprintf("http://%s:%s", authzNetworkName, os.Getenv("AUTHZ_PORT")),
			"AUTHZ_CLIENT_ID":           os.Getenv("AUTHZ_CLIENT_ID"),
			"PORT":                      appPortNumber,
		},
		HostConfigModifier: hostConfigModifier,
		WaitingFor:         waitStrategy,
		Networks:           []string{networkName},
	}

	if debugContainer == "true" {
		appContainerRequest.Entrypoint = []string{
			"/usr/local/bin/dlv",
			"--listen=:2345",
			"--headless=true",
			"--api-version=2",
			"--accept-multiclient",
			"exec",
			"./featherdb",
		}
	}

	if !imgExists {
		reaperSessionID := uuid.New().String()

		buildArgs := map[string]*string{
			"RESOURCE_REAPER_SESSION_ID": &reaperSessionID,
		}
		if debugContainer == "true" {
			buildArgs["DEBUG"] = &debugContainer
		}

		buildContext := os.Getenv("TESTCONTAINERS_BUILD_CONTEXT")
		if buildContext == "" {
			buildContext = "../.."
		}

		logMessage(t, "Image %s does not exist, building...", imageName)
		builderContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				FromDockerfile: testcontainers.FromDockerfile{
					Context:    buildContext,
					Dockerfile: "Dockerfile",
					Repo:       "featherdb-test-builder",
					Tag:        "latest",
					BuildArgs:  buildArgs,
					BuildOptionsModifier: func(opts *build.ImageBuildOptions) {
						opts.Target = "builder"
					},
					PrintBuildLog: true,
				},
			},
			Started: false,
		})
		if err != nil {
			testContainers.Terminate(t)
			exitWithError(t, err, "Failed to build featherdb-test-builder")
		}
		testContainers.AppBuilderContainer = builderContainer

		imageNameParts := strings.Split(imageName, ":")
		appContainerRequest.FromDockerfile = testcontainers.FromDockerfile{
			Context:    buildContext,
			Dockerfile: "Dockerfile",
			Repo:       imageNameParts[0],
			Tag:        imageNameParts[1],
			KeepImage:  true,
			BuildArgs:  buildArgs,
			BuildOptionsModifier: func(opts *build.ImageBuildOptions) {
				opts.Target = "runtime"
			},
			PrintBuildLog: true,
		}
	} else {
		logMessage(t, "Image %s exists, reusing...", imageName)
		appContainerRequest.Image = imageName
	}

	appContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: appContainerRequest,
		Started:          true,
	})
	if err != nil {
		testContainers.Terminate(t)
		exitWithError(t, err, "Failed to start featherdb")
	}
	testContainers.AppContainer = appContainer

	appHost, _ := appContainer.Host(ctx)
	appPort, _ := appContainer.MappedPort(ctx, tcpAppPort)
	testContainers.BaseURL = fmt.Sprintf("http://%s:%s", appHost, appPort.Port())
	logMessage(t, "BASE_URL=%s", testContainers.BaseURL)

	logMessage(t, "featherdb testcontainer stack started successfully")
	return testContainers, nil
}

// performPostgresDBInit creates the request-pipeline role and the
// Authorizer's own database, using the DB_SUPER_USER superuser role the
// container was seeded with. internal/database.Connect/ConnectSuper open
// their own pools once the app starts; this only needs to exist first.
func performPostgresDBInit(t *testing.T, testContainers *TestContainers, dbHost string, dbPort nat.Port) error {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort.Port(), os.Getenv("DB_SUPER_USER"), os.Getenv("DB_SUPER_PASSWORD"), os.Getenv("DB_DATABASE"))

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	var pingErr error
	for i := 0; i < 30; i++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	if pingErr != nil {
		return fmt.Errorf("postgres not ready after 30 seconds: %w", pingErr)
	}

	statements := []string{
		fmt.Sprintf("CREATE DATABASE %s", pqIdent(os.Getenv("AUTHZ_DATABASE"))),
		fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s", pqIdent(os.Getenv("DB_USER")), pqLiteral(os.Getenv("DB_PASSWORD"))),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", pqIdent(os.Getenv("DB_DATABASE")), pqIdent(os.Getenv("DB_USER"))),
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			logMessage(t, "postgres init statement failed (continuing): %s: %v", stmt, err)
		}
	}
	return nil
}

func pqIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func pqLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func imageExists(ctx context.Context, imageName string) (bool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false, err
	}
	defer cli.Close()

	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return false, err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == imageName {
				return true, nil
			}
		}
	}

	return false, nil
}

func exitWithError(t *testing.T, err error, msg string) {
	if t != nil {
		t.Fatalf(msg+": %v", err)
	} else {
		fmt.Printf(msg+": %v\n", err)
		os.Exit(1)
	}
}

func logMessage(t *testing.T, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
