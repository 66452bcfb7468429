package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/utils"
)

var cfgFile string

const (
	LOGO = `	 _       _          _
	| | __ _| |__   ___| |___  ___ ___  _ __   ___
	| |/ _` + "`" + ` | '_ \ / _ \ / __|/ __/ _ \| '_ \ / _ \
	| | (_| | |_) |  __/ \__ \ (_| (_) | |_) |  __/
	|_|\__,_|_.__/ \___|_|___/\___\___/| .__/ \___|
	                                   |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "labelscope",
	Short: "A labelling toolkit for MIDAS oral cancer image datasets.",
	Long: LOGO + `labelscope walks MIDAS-style dataset trees (Case -> Visit -> modality folders),
runs interactive labelling sessions for clinical photographs and histopathology
slides, and writes the label CSVs and session summaries the study expects.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.labelscope.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".labelscope")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.labelscope.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("annotator", "")
	viper.SetDefault("autosave_every", 25)
	viper.SetDefault("dbpath", "labelscope.sqlite")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
