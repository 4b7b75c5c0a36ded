package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage custom classification rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted rules in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		persisted, err := rules.NewManager(st).Load(ctx)
		if err != nil {
			return err
		}
		if len(persisted) == 0 {
			fmt.Println("No rules saved.")
			return nil
		}
		for i, rule := range persisted {
			fmt.Printf("%d. [%s] %s\n", i+1, rule.Tag, rule.Text)
		}
		return nil
	},
}

var ruleTag string

var rulesAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Append a rule bound to one tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rule := model.CustomInstruction{Tag: model.Tag(ruleTag), Text: args[0]}
		if err := rules.NewManager(st).Add(ctx, rule); err != nil {
			return err
		}
		fmt.Println("Rule saved.")
		return nil
	},
}

var rulesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all persisted rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := rules.NewManager(st).Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Rules cleared.")
		return nil
	},
}

func init() {
	rulesAddCmd.Flags().StringVarP(&ruleTag, "tag", "t", "", "tag the rule applies to (AI, Gen AI, Analytics, Data)")
	_ = rulesAddCmd.MarkFlagRequired("tag")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesClearCmd)
	rootCmd.AddCommand(rulesCmd)
}
